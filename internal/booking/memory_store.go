package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/nailspa-booking/internal/events"
)

// MemoryStore is an in-process Store. A single mutex serialises
// transactions; writes are staged on the Tx and applied only when the
// transaction function returns nil.
type MemoryStore struct {
	mu           sync.Mutex
	customers    map[string]Customer
	appointments map[string]Appointment
	outbox       *events.MemoryOutbox
}

// NewMemoryStore returns an empty store. A nil outbox gets a private one.
func NewMemoryStore(outbox *events.MemoryOutbox) *MemoryStore {
	if outbox == nil {
		outbox = events.NewMemoryOutbox()
	}
	return &MemoryStore{
		customers:    make(map[string]Customer),
		appointments: make(map[string]Appointment),
		outbox:       outbox,
	}
}

// Outbox exposes the event buffer for the deliverer.
func (m *MemoryStore) Outbox() *events.MemoryOutbox {
	return m.outbox
}

type stagedEvent struct {
	businessID string
	eventType  string
	payload    any
}

type memoryTx struct {
	store        *MemoryStore
	customers    map[string]Customer
	appointments map[string]Appointment
	events       []stagedEvent
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:        m,
		customers:    make(map[string]Customer),
		appointments: make(map[string]Appointment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, c := range tx.customers {
		m.customers[id] = c
	}
	for id, a := range tx.appointments {
		m.appointments[id] = a
	}
	for _, e := range tx.events {
		if _, err := m.outbox.Insert(ctx, e.businessID, e.eventType, e.payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, businessID string, date civil.Date) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a Appointment) bool { return a.BusinessID == businessID && a.Date == date }, nil), nil
}

func (m *MemoryStore) GetAppointment(_ context.Context, businessID, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.BusinessID != businessID {
		return nil, ErrNotFound
	}
	m.hydrate(&a, nil)
	return &a, nil
}

func (m *MemoryStore) ListActiveThrough(_ context.Context, date civil.Date) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a Appointment) bool { return a.Status.Active() && !a.Date.After(date) }, nil), nil
}

func (m *MemoryStore) FindCustomerByPhone(_ context.Context, businessID, phone string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.BusinessID == businessID && c.Phone == phone {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

// CustomerCount returns the number of customers stored for a business.
func (m *MemoryStore) CustomerCount(businessID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.customers {
		if c.BusinessID == businessID {
			n++
		}
	}
	return n
}

// filter must be called with m.mu held. staged rows shadow committed ones.
func (m *MemoryStore) filter(keep func(Appointment) bool, staged map[string]Appointment) []Appointment {
	var out []Appointment
	seen := make(map[string]bool)
	for id, a := range staged {
		seen[id] = true
		if keep(a) {
			out = append(out, a)
		}
	}
	for id, a := range m.appointments {
		if seen[id] || !keep(a) {
			continue
		}
		out = append(out, a)
	}
	for i := range out {
		m.hydrate(&out[i], nil)
	}
	sortAppointments(out)
	return out
}

func (m *MemoryStore) hydrate(a *Appointment, staged map[string]Customer) {
	c, ok := staged[a.CustomerID]
	if !ok {
		c, ok = m.customers[a.CustomerID]
	}
	if !ok {
		return
	}
	if a.CustomerName == "" {
		a.CustomerName = c.FullName()
	}
	a.CustomerPhone = c.Phone
	if a.CustomerEmail == "" {
		a.CustomerEmail = c.Email
	}
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

func (tx *memoryTx) LockDay(context.Context, string, civil.Date) error { return nil }

func (tx *memoryTx) ListAppointments(_ context.Context, businessID string, date civil.Date) ([]Appointment, error) {
	return tx.store.filter(func(a Appointment) bool { return a.BusinessID == businessID && a.Date == date }, tx.appointments), nil
}

func (tx *memoryTx) EnsureCustomer(_ context.Context, c *Customer) (bool, error) {
	for _, src := range []map[string]Customer{tx.customers, tx.store.customers} {
		for _, existing := range src {
			if existing.BusinessID == c.BusinessID && existing.Phone == c.Phone {
				c.ID = existing.ID
				return false, nil
			}
		}
	}
	tx.customers[c.ID] = *c
	return true, nil
}

func (tx *memoryTx) InsertAppointment(_ context.Context, a *Appointment) error {
	candidate := a.Interval()
	for _, existing := range tx.store.filter(func(e Appointment) bool {
		return e.BusinessID == a.BusinessID && e.Date == a.Date && e.Status != StatusCancelled
	}, tx.appointments) {
		if existing.Interval().Overlaps(candidate) {
			return ErrSlotTaken
		}
	}
	tx.appointments[a.ID] = *a
	return nil
}

func (tx *memoryTx) GetAppointment(_ context.Context, businessID, id string) (*Appointment, error) {
	a, ok := tx.appointments[id]
	if !ok {
		a, ok = tx.store.appointments[id]
	}
	if !ok || a.BusinessID != businessID {
		return nil, ErrNotFound
	}
	tx.store.hydrate(&a, tx.customers)
	return &a, nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, businessID, id string, status Status, reason string, at time.Time) error {
	a, err := tx.GetAppointment(ctx, businessID, id)
	if err != nil {
		return err
	}
	a.Status = status
	a.UpdatedAt = at
	if status == StatusCancelled {
		a.CancelReason = reason
	}
	tx.appointments[id] = *a
	return nil
}

func (tx *memoryTx) NextActiveForCustomer(_ context.Context, businessID, customerID string, from civil.Date) (*Appointment, error) {
	upcoming := tx.store.filter(func(a Appointment) bool {
		return a.BusinessID == businessID && a.CustomerID == customerID && a.Status.Active() && !a.Date.Before(from)
	}, tx.appointments)
	if len(upcoming) == 0 {
		return nil, nil
	}
	return &upcoming[0], nil
}

func (tx *memoryTx) AppendEvent(_ context.Context, businessID, eventType string, payload any) error {
	tx.events = append(tx.events, stagedEvent{businessID: businessID, eventType: eventType, payload: payload})
	return nil
}
