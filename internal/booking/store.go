package booking

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// Store persists customers and appointments. Implementations must make
// WithinTx atomic: either every write made through the Tx is visible
// afterwards or none is.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]Appointment, error)
	GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error)
	// ListActiveThrough returns scheduled or confirmed appointments on or
	// before date, across businesses.
	ListActiveThrough(ctx context.Context, date civil.Date) ([]Appointment, error)
	FindCustomerByPhone(ctx context.Context, businessID, phone string) (*Customer, error)
}

// Tx is the write view used by the Booking Transaction and lifecycle
// operations.
type Tx interface {
	// LockDay serialises writers on one business day. Stores that already
	// serialise all transactions may implement it as a no-op.
	LockDay(ctx context.Context, businessID string, date civil.Date) error
	ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]Appointment, error)
	// EnsureCustomer inserts c unless (BusinessID, Phone) already exists;
	// either way c.ID ends up holding the stored row id.
	EnsureCustomer(ctx context.Context, c *Customer) (created bool, err error)
	// InsertAppointment reports ErrSlotTaken when the store's own
	// uniqueness guard rejects the row.
	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error)
	UpdateStatus(ctx context.Context, businessID, id string, status Status, reason string, at time.Time) error
	NextActiveForCustomer(ctx context.Context, businessID, customerID string, from civil.Date) (*Appointment, error)
	AppendEvent(ctx context.Context, businessID, eventType string, payload any) error
}
