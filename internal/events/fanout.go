package events

import (
	"context"
	"errors"
)

// FanOut hands each entry to every handler. It fails if any handler
// fails, which leaves the entry pending for the next poll; handlers must
// therefore tolerate redelivery.
type FanOut []DeliveryHandler

func (f FanOut) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
