package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOutbox is an in-process outbox for the memory store driver.
// Delivered entries are dropped, so it only ever holds the pending backlog.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries []OutboxEntry
	now     func() time.Time
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{now: time.Now}
}

func (o *MemoryOutbox) Insert(_ context.Context, businessID, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	entry := OutboxEntry{
		ID:         uuid.New(),
		BusinessID: businessID,
		Type:       eventType,
		Payload:    data,
		CreatedAt:  o.now().UTC(),
	}
	o.entries = append(o.entries, entry)
	return entry.ID, nil
}

func (o *MemoryOutbox) FetchPending(_ context.Context, limit int32) ([]OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.entries)
	if limit > 0 && int(limit) < n {
		n = int(limit)
	}
	return append([]OutboxEntry(nil), o.entries[:n]...), nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.entries {
		if e.ID == id {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Entries returns a copy of the entries not yet delivered.
func (o *MemoryOutbox) Entries() []OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OutboxEntry(nil), o.entries...)
}
