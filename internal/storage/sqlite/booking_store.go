package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/internal/events"
)

// BookingStore keeps customers, appointments and the outbox in SQLite.
// Write transactions are serialised by the database lock, so LockDay has
// nothing left to do.
type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	if db == nil {
		panic("sqlite: db required")
	}
	return &BookingStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const appointmentSelect = `
	SELECT a.id, a.business_id, a.customer_id,
		trim(c.first_name || ' ' || c.last_name), c.phone, c.email,
		a.service_id, a.service_name, a.price_cents,
		a.appointment_date, a.start_time, a.duration_minutes,
		a.status, a.booking_source, a.rescheduled_from, a.cancel_reason,
		a.created_at, a.updated_at
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id`

func (s *BookingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *BookingStore) ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]booking.Appointment, error) {
	return listAppointments(ctx, s.db, businessID, date)
}

func (s *BookingStore) GetAppointment(ctx context.Context, businessID, id string) (*booking.Appointment, error) {
	return getAppointment(ctx, s.db, businessID, id)
}

func (s *BookingStore) ListActiveThrough(ctx context.Context, date civil.Date) ([]booking.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, appointmentSelect+`
		WHERE a.status IN ('scheduled', 'confirmed') AND a.appointment_date <= ?
		ORDER BY a.appointment_date, a.start_minute`, date.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active: %w", err)
	}
	return scanAppointments(rows)
}

func (s *BookingStore) FindCustomerByPhone(ctx context.Context, businessID, phone string) (*booking.Customer, error) {
	return findCustomer(ctx, s.db, businessID, phone)
}

func findCustomer(ctx context.Context, q queryer, businessID, phone string) (*booking.Customer, error) {
	var (
		c       booking.Customer
		created string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, business_id, first_name, last_name, phone, email, created_at
		FROM customers
		WHERE business_id = ? AND phone = ?`, businessID, phone,
	).Scan(&c.ID, &c.BusinessID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find customer: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func listAppointments(ctx context.Context, q queryer, businessID string, date civil.Date) ([]booking.Appointment, error) {
	rows, err := q.QueryContext(ctx, appointmentSelect+`
		WHERE a.business_id = ? AND a.appointment_date = ?
		ORDER BY a.start_minute`, businessID, date.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list appointments: %w", err)
	}
	return scanAppointments(rows)
}

func getAppointment(ctx context.Context, q queryer, businessID, id string) (*booking.Appointment, error) {
	a, err := scanAppointment(q.QueryRowContext(ctx, appointmentSelect+` WHERE a.business_id = ? AND a.id = ?`, businessID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get appointment: %w", err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointments(rows *sql.Rows) ([]booking.Appointment, error) {
	defer rows.Close()
	var out []booking.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAppointment(row scanner) (*booking.Appointment, error) {
	var (
		a                booking.Appointment
		date, start      string
		status, source   string
		created, updated string
	)
	if err := row.Scan(
		&a.ID, &a.BusinessID, &a.CustomerID,
		&a.CustomerName, &a.CustomerPhone, &a.CustomerEmail,
		&a.ServiceID, &a.ServiceName, &a.PriceCents,
		&date, &start, &a.DurationMinutes,
		&status, &source, &a.RescheduledFrom, &a.CancelReason,
		&created, &updated,
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
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

type bookingTx struct {
	tx *sql.Tx
}

func (t *bookingTx) LockDay(context.Context, string, civil.Date) error { return nil }

func (t *bookingTx) ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]booking.Appointment, error) {
	return listAppointments(ctx, t.tx, businessID, date)
}

func (t *bookingTx) EnsureCustomer(ctx context.Context, c *booking.Customer) (bool, error) {
	existing, err := findCustomer(ctx, t.tx, c.BusinessID, c.Phone)
	if err != nil {
		return false, err
	}
	if existing != nil {
		c.ID = existing.ID
		return false, nil
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO customers (id, business_id, first_name, last_name, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BusinessID, c.FirstName, c.LastName, c.Phone, c.Email, formatTime(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("sqlite: insert customer: %w", err)
	}
	return true, nil
}

func (t *bookingTx) InsertAppointment(ctx context.Context, a *booking.Appointment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments (
			id, business_id, customer_id, service_id, service_name, price_cents,
			appointment_date, start_time, start_minute, duration_minutes, status,
			booking_source, rescheduled_from, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BusinessID, a.CustomerID, a.ServiceID, a.ServiceName, a.PriceCents,
		a.Date.String(), clock.FormatHHMM(a.StartTime), clock.Minutes(a.StartTime), a.DurationMinutes, string(a.Status),
		string(a.Source), a.RescheduledFrom, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return mapInsertError(err)
	}
	return nil
}

func (t *bookingTx) GetAppointment(ctx context.Context, businessID, id string) (*booking.Appointment, error) {
	return getAppointment(ctx, t.tx, businessID, id)
}

func (t *bookingTx) UpdateStatus(ctx context.Context, businessID, id string, status booking.Status, reason string, at time.Time) error {
	if status != booking.StatusCancelled {
		reason = ""
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?, cancel_reason = CASE WHEN ? = '' THEN cancel_reason ELSE ? END, updated_at = ?
		WHERE business_id = ? AND id = ?`,
		string(status), reason, reason, formatTime(at), businessID, id)
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *bookingTx) NextActiveForCustomer(ctx context.Context, businessID, customerID string, from civil.Date) (*booking.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRowContext(ctx, appointmentSelect+`
		WHERE a.business_id = ? AND a.customer_id = ?
			AND a.status IN ('scheduled', 'confirmed')
			AND a.appointment_date >= ?
		ORDER BY a.appointment_date, a.start_minute
		LIMIT 1`, businessID, customerID, from.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: next appointment: %w", err)
	}
	return a, nil
}

func (t *bookingTx) AppendEvent(ctx context.Context, businessID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sqlite: marshal event: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO outbox (id, business_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), businessID, eventType, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("sqlite: insert outbox: %w", err)
	}
	return nil
}

// OutboxSource feeds events.Deliverer from the SQLite outbox table.
type OutboxSource struct {
	db *sql.DB
}

func NewOutboxSource(db *sql.DB) *OutboxSource {
	return &OutboxSource{db: db}
}

func (o *OutboxSource) FetchPending(ctx context.Context, limit int32) ([]events.OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, business_id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch outbox: %w", err)
	}
	defer rows.Close()

	var out []events.OutboxEntry
	for rows.Next() {
		var (
			e               events.OutboxEntry
			id, payload, ts string
		)
		if err := rows.Scan(&id, &e.BusinessID, &e.Type, &payload, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan outbox: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlite: outbox id %q: %w", id, err)
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o *OutboxSource) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := o.db.ExecContext(ctx, `
		UPDATE outbox SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return false, fmt.Errorf("sqlite: mark delivered: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
