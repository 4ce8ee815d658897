package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// BusinessStore keeps business configuration in SQLite.
type BusinessStore struct {
	db *sql.DB
}

func NewBusinessStore(db *sql.DB) *BusinessStore {
	if db == nil {
		panic("sqlite: db required")
	}
	return &BusinessStore{db: db}
}

const businessColumns = `id, name, timezone, COALESCE(phone_number, ''), active`

func (s *BusinessStore) GetBusiness(ctx context.Context, id string) (*business.Business, error) {
	return scanBusiness(s.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id))
}

func (s *BusinessStore) FindBusinessByPhone(ctx context.Context, phone string) (*business.Business, error) {
	return scanBusiness(s.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE phone_number = ?`, strings.TrimSpace(phone)))
}

func scanBusiness(row *sql.Row) (*business.Business, error) {
	var (
		b      business.Business
		active int
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Timezone, &b.PhoneNumber, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, business.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: load business: %w", err)
	}
	b.Active = active == 1
	return &b, nil
}

func (s *BusinessStore) SaveBusiness(ctx context.Context, b business.Business) error {
	var phone any
	if p := strings.TrimSpace(b.PhoneNumber); p != "" {
		phone = p
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, timezone, phone_number, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			phone_number = excluded.phone_number,
			active = excluded.active`,
		b.ID, b.Name, b.Timezone, phone, boolInt(b.Active))
	if err != nil {
		return fmt.Errorf("sqlite: save business: %w", err)
	}
	return nil
}

func (s *BusinessStore) ListHours(ctx context.Context, businessID string) (business.WeeklyHours, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, is_closed, COALESCE(open_time, ''), COALESCE(close_time, '')
		FROM business_hours
		WHERE business_id = ?
		ORDER BY day_of_week`, businessID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list hours: %w", err)
	}
	defer rows.Close()

	var out business.WeeklyHours
	for rows.Next() {
		var (
			day, closed     int
			openAt, closeAt string
		)
		if err := rows.Scan(&day, &closed, &openAt, &closeAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan hours: %w", err)
		}
		h := business.DayHours{Day: time.Weekday(day), Closed: closed == 1}
		if !h.Closed {
			if h.Open, err = clock.ParseHHMM(openAt); err != nil {
				return nil, fmt.Errorf("sqlite: hours open_time: %w", err)
			}
			if h.Close, err = clock.ParseHHMM(closeAt); err != nil {
				return nil, fmt.Errorf("sqlite: hours close_time: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *BusinessStore) SetHours(ctx context.Context, businessID string, hours business.WeeklyHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM business_hours WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("sqlite: clear hours: %w", err)
	}
	for _, h := range hours.Sorted() {
		var openAt, closeAt any
		if !h.Closed {
			openAt, closeAt = clock.FormatHHMM(h.Open), clock.FormatHHMM(h.Close)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO business_hours (business_id, day_of_week, is_closed, open_time, close_time)
			VALUES (?, ?, ?, ?, ?)`,
			businessID, int(h.Day), boolInt(h.Closed), openAt, closeAt); err != nil {
			return fmt.Errorf("sqlite: insert hours for %s: %w", h.Day, err)
		}
	}
	return tx.Commit()
}

func (s *BusinessStore) ListServices(ctx context.Context, businessID string) ([]business.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE business_id = ?
		ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list services: %w", err)
	}
	defer rows.Close()

	var out []business.Service
	for rows.Next() {
		var (
			svc    business.Service
			active int
		)
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &active); err != nil {
			return nil, fmt.Errorf("sqlite: scan service: %w", err)
		}
		svc.Active = active == 1
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *BusinessStore) SaveService(ctx context.Context, svc business.Service) (*business.Service, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	svc.Name = strings.TrimSpace(svc.Name)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO services (id, business_id, name, name_key, duration_minutes, price_cents, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id, name_key) DO UPDATE SET
			duration_minutes = excluded.duration_minutes,
			price_cents = excluded.price_cents,
			active = excluded.active
		RETURNING id`,
		svc.ID, svc.BusinessID, svc.Name, strings.ToLower(svc.Name), svc.DurationMinutes, svc.PriceCents, boolInt(svc.Active),
	).Scan(&svc.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: save service: %w", err)
	}
	return &svc, nil
}
