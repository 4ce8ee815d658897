package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/internal/events"
)

// BookingStore persists customers and appointments. Writers on the same
// business day are serialised with a transaction-scoped advisory lock and
// the appointments_no_overlap exclusion constraint backs that up.
type BookingStore struct {
	db DB
}

func NewBookingStore(db DB) *BookingStore {
	if db == nil {
		panic("postgres: db required")
	}
	return &BookingStore{db: db}
}

const appointmentSelect = `
	SELECT a.id, a.business_id, a.customer_id,
		trim(c.first_name || ' ' || c.last_name), c.phone, c.email,
		COALESCE(a.service_id, ''), a.service_name, a.price_cents,
		to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.start_time, 'HH24:MI'),
		a.duration_minutes, a.status, a.booking_source,
		COALESCE(a.rescheduled_from, ''), COALESCE(a.cancel_reason, ''),
		a.created_at, a.updated_at
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *BookingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return booking.ErrSlotTaken
		}
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *BookingStore) ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]booking.Appointment, error) {
	return listAppointments(ctx, s.db, businessID, date)
}

func (s *BookingStore) GetAppointment(ctx context.Context, businessID, id string) (*booking.Appointment, error) {
	return getAppointment(ctx, s.db, businessID, id, false)
}

func (s *BookingStore) ListActiveThrough(ctx context.Context, date civil.Date) ([]booking.Appointment, error) {
	rows, err := s.db.Query(ctx, appointmentSelect+`
		WHERE a.status IN ('scheduled', 'confirmed') AND a.appointment_date <= $1::date
		ORDER BY a.appointment_date, a.start_time`, date.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list active: %w", err)
	}
	return scanAppointments(rows)
}

func (s *BookingStore) FindCustomerByPhone(ctx context.Context, businessID, phone string) (*booking.Customer, error) {
	var c booking.Customer
	err := s.db.QueryRow(ctx, `
		SELECT id, business_id, first_name, last_name, phone, email, created_at
		FROM customers
		WHERE business_id = $1 AND phone = $2`, businessID, phone,
	).Scan(&c.ID, &c.BusinessID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find customer: %w", err)
	}
	return &c, nil
}

func listAppointments(ctx context.Context, q querier, businessID string, date civil.Date) ([]booking.Appointment, error) {
	rows, err := q.Query(ctx, appointmentSelect+`
		WHERE a.business_id = $1 AND a.appointment_date = $2::date
		ORDER BY a.start_time`, businessID, date.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list appointments: %w", err)
	}
	return scanAppointments(rows)
}

func getAppointment(ctx context.Context, q querier, businessID, id string, forUpdate bool) (*booking.Appointment, error) {
	sql := appointmentSelect + ` WHERE a.business_id = $1 AND a.id = $2`
	if forUpdate {
		sql += ` FOR UPDATE OF a`
	}
	a, err := scanAppointment(q.QueryRow(ctx, sql, businessID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get appointment: %w", err)
	}
	return a, nil
}

func scanAppointments(rows pgx.Rows) ([]booking.Appointment, error) {
	defer rows.Close()
	var out []booking.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*booking.Appointment, error) {
	var (
		a              booking.Appointment
		date, start    string
		status, source string
	)
	if err := row.Scan(
		&a.ID, &a.BusinessID, &a.CustomerID,
		&a.CustomerName, &a.CustomerPhone, &a.CustomerEmail,
		&a.ServiceID, &a.ServiceName, &a.PriceCents,
		&date, &start,
		&a.DurationMinutes, &status, &source,
		&a.RescheduledFrom, &a.CancelReason,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if a.Date, err = clock.ParseDate(date); err != nil {
		return nil, err
	}
	if a.StartTime, err = clock.ParseHHMM(start); err != nil {
		return nil, err
	}
	a.Status = booking.Status(status)
	a.Source = booking.Source(source)
	return &a, nil
}

type bookingTx struct {
	tx pgx.Tx
}

// LockDay takes a transaction-scoped advisory lock keyed on business and
// date. It is released on commit or rollback.
func (t *bookingTx) LockDay(ctx context.Context, businessID string, date civil.Date) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, businessID+":"+date.String()); err != nil {
		return fmt.Errorf("postgres: lock day: %w", err)
	}
	return nil
}

func (t *bookingTx) ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]booking.Appointment, error) {
	return listAppointments(ctx, t.tx, businessID, date)
}

// EnsureCustomer relies on UNIQUE (business_id, phone); the no-op update
// makes RETURNING yield the existing row, and xmax = 0 only for a fresh
// insert.
func (t *bookingTx) EnsureCustomer(ctx context.Context, c *booking.Customer) (bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customers (id, business_id, first_name, last_name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, (xmax = 0)`,
		c.ID, c.BusinessID, c.FirstName, c.LastName, c.Phone, c.Email, c.CreatedAt,
	).Scan(&c.ID, &created)
	if err != nil {
		return false, fmt.Errorf("postgres: ensure customer: %w", err)
	}
	return created, nil
}

func (t *bookingTx) InsertAppointment(ctx context.Context, a *booking.Appointment) error {
	var serviceID, rescheduledFrom *string
	if a.ServiceID != "" {
		serviceID = &a.ServiceID
	}
	if a.RescheduledFrom != "" {
		rescheduledFrom = &a.RescheduledFrom
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, business_id, customer_id, service_id, service_name, price_cents,
			appointment_date, start_time, duration_minutes, status, booking_source,
			rescheduled_from, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::time, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.BusinessID, a.CustomerID, serviceID, a.ServiceName, a.PriceCents,
		a.Date.String(), clock.FormatHHMM(a.StartTime), a.DurationMinutes, string(a.Status), string(a.Source),
		rescheduledFrom, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isConflict(err) {
			return booking.ErrSlotTaken
		}
		return fmt.Errorf("postgres: insert appointment: %w", err)
	}
	return nil
}

func (t *bookingTx) GetAppointment(ctx context.Context, businessID, id string) (*booking.Appointment, error) {
	return getAppointment(ctx, t.tx, businessID, id, true)
}

func (t *bookingTx) UpdateStatus(ctx context.Context, businessID, id string, status booking.Status, reason string, at time.Time) error {
	var cancelReason *string
	if status == booking.StatusCancelled && reason != "" {
		cancelReason = &reason
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, cancel_reason = COALESCE($4, cancel_reason), updated_at = $5
		WHERE business_id = $1 AND id = $2`,
		businessID, id, string(status), cancelReason, at)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *bookingTx) NextActiveForCustomer(ctx context.Context, businessID, customerID string, from civil.Date) (*booking.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, appointmentSelect+`
		WHERE a.business_id = $1 AND a.customer_id = $2
			AND a.status IN ('scheduled', 'confirmed')
			AND a.appointment_date >= $3::date
		ORDER BY a.appointment_date, a.start_time
		LIMIT 1
		FOR UPDATE OF a`, businessID, customerID, from.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: next appointment: %w", err)
	}
	return a, nil
}

func (t *bookingTx) AppendEvent(ctx context.Context, businessID, eventType string, payload any) error {
	_, err := events.Append(ctx, t.tx, businessID, eventType, payload)
	return err
}
