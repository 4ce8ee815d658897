// Package channels holds what the voice, SMS and web adapters share: the
// friendly wording of results and the book-or-offer-alternatives flow.
package channels

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

const maxSpokenSlots = 4

var fieldPrompts = map[string]string{
	"customerName":    "Could I get your name for the booking?",
	"customerPhone":   "Could you give me a phone number we can reach you at?",
	"customerEmail":   "That email address doesn't look right. Could you spell it for me?",
	"date":            "What day would you like to come in?",
	"time":            "What time works best for you?",
	"durationMinutes": "How long should we plan for the appointment?",
}

// FriendlyMessage is the customer-facing text for a failed operation. It
// never includes raw error text.
func FriendlyMessage(err error) string {
	switch booking.KindOf(err) {
	case booking.KindValidation:
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			if prompt, ok := fieldPrompts[verr.Field]; ok {
				return prompt
			}
		}
		return "I didn't quite catch that. Could you tell me the day and time you'd like?"
	case booking.KindClosedDay:
		return "Sorry, we're closed that day. Would another day work for you?"
	case booking.KindSlotTaken:
		return "Sorry, that time was just taken."
	case booking.KindNotFound:
		return "I couldn't find an upcoming appointment for you."
	case booking.KindTransition:
		return "That appointment can't be changed anymore."
	default:
		return "Sorry, I'm having trouble reaching our booking system right now. Please try again in a moment."
	}
}

// SpokenSlots renders up to maxSpokenSlots times as "9 AM, 10 AM or 1 PM".
func SpokenSlots(slots []civil.Time) string {
	if len(slots) > maxSpokenSlots {
		slots = spread(slots, maxSpokenSlots)
	}
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, clock.Spoken(s))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
	}
}

// spread picks n slots across the day so a caller hears morning and
// afternoon options rather than the first n.
func spread(slots []civil.Time, n int) []civil.Time {
	out := make([]civil.Time, 0, n)
	last := len(slots) - 1
	for i := 0; i < n; i++ {
		out = append(out, slots[i*last/(n-1)])
	}
	return out
}

// AvailabilityReply phrases an availability result.
func AvailabilityReply(a *booking.Availability) string {
	day := clock.SpokenDate(a.Date)
	switch {
	case a.Reason == booking.ReasonClosed:
		return fmt.Sprintf("Sorry, we're closed on %s. Would another day work for you?", day)
	case !a.Available:
		return fmt.Sprintf("Sorry, we're fully booked on %s. Would another day work for you?", day)
	}
	return fmt.Sprintf("On %s I have %s available. Which time works best?", day, SpokenSlots(a.Slots))
}

// SlotTakenReply apologises and offers what is still open that day.
func SlotTakenReply(alternatives *booking.Availability) string {
	msg := FriendlyMessage(booking.ErrSlotTaken)
	if alternatives == nil || !alternatives.Available {
		return msg + " Would another day work for you?"
	}
	return fmt.Sprintf("%s I still have %s open on %s.", msg, SpokenSlots(alternatives.Slots), clock.SpokenDate(alternatives.Date))
}
