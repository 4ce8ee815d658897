package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// BusinessStore persists business profiles, weekly hours and services.
type BusinessStore struct {
	db DB
}

func NewBusinessStore(db DB) *BusinessStore {
	if db == nil {
		panic("postgres: db required")
	}
	return &BusinessStore{db: db}
}

const businessColumns = `id, name, timezone, COALESCE(phone_number, ''), active`

func (s *BusinessStore) GetBusiness(ctx context.Context, id string) (*business.Business, error) {
	return s.scanBusiness(s.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
}

func (s *BusinessStore) FindBusinessByPhone(ctx context.Context, phone string) (*business.Business, error) {
	return s.scanBusiness(s.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE phone_number = $1`, strings.TrimSpace(phone)))
}

func (s *BusinessStore) scanBusiness(row pgx.Row) (*business.Business, error) {
	var b business.Business
	if err := row.Scan(&b.ID, &b.Name, &b.Timezone, &b.PhoneNumber, &b.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, business.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load business: %w", err)
	}
	return &b, nil
}

func (s *BusinessStore) SaveBusiness(ctx context.Context, b business.Business) error {
	var phone *string
	if p := strings.TrimSpace(b.PhoneNumber); p != "" {
		phone = &p
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO businesses (id, name, timezone, phone_number, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			phone_number = EXCLUDED.phone_number,
			active = EXCLUDED.active,
			updated_at = now()`,
		b.ID, b.Name, b.Timezone, phone, b.Active)
	if err != nil {
		return fmt.Errorf("postgres: save business: %w", err)
	}
	return nil
}

func (s *BusinessStore) ListHours(ctx context.Context, businessID string) (business.WeeklyHours, error) {
	rows, err := s.db.Query(ctx, `
		SELECT day_of_week, is_closed,
			COALESCE(to_char(open_time, 'HH24:MI'), ''),
			COALESCE(to_char(close_time, 'HH24:MI'), '')
		FROM business_hours
		WHERE business_id = $1
		ORDER BY day_of_week`, businessID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list hours: %w", err)
	}
	defer rows.Close()

	var out business.WeeklyHours
	for rows.Next() {
		var (
			day             int16
			closed          bool
			openAt, closeAt string
		)
		if err := rows.Scan(&day, &closed, &openAt, &closeAt); err != nil {
			return nil, fmt.Errorf("postgres: scan hours: %w", err)
		}
		h := business.DayHours{Day: time.Weekday(day), Closed: closed}
		if !closed {
			if h.Open, err = clock.ParseHHMM(openAt); err != nil {
				return nil, fmt.Errorf("postgres: hours open_time: %w", err)
			}
			if h.Close, err = clock.ParseHHMM(closeAt); err != nil {
				return nil, fmt.Errorf("postgres: hours close_time: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetHours replaces the whole week in one transaction.
func (s *BusinessStore) SetHours(ctx context.Context, businessID string, hours business.WeeklyHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM business_hours WHERE business_id = $1`, businessID); err != nil {
		return fmt.Errorf("postgres: clear hours: %w", err)
	}
	for _, h := range hours.Sorted() {
		var openAt, closeAt *string
		if !h.Closed {
			o, c := clock.FormatHHMM(h.Open), clock.FormatHHMM(h.Close)
			openAt, closeAt = &o, &c
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_hours (business_id, day_of_week, is_closed, open_time, close_time)
			VALUES ($1, $2, $3, $4::time, $5::time)`,
			businessID, int16(h.Day), h.Closed, openAt, closeAt); err != nil {
			return fmt.Errorf("postgres: insert hours for %s: %w", h.Day, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit hours: %w", err)
	}
	return nil
}

func (s *BusinessStore) ListServices(ctx context.Context, businessID string) ([]business.Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE business_id = $1
		ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list services: %w", err)
	}
	defer rows.Close()

	var out []business.Service
	for rows.Next() {
		var svc business.Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// SaveService upserts by (business, lower(name)).
func (s *BusinessStore) SaveService(ctx context.Context, svc business.Service) (*business.Service, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes, price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, lower(name)) DO UPDATE SET
			duration_minutes = EXCLUDED.duration_minutes,
			price_cents = EXCLUDED.price_cents,
			active = EXCLUDED.active
		RETURNING id`,
		svc.ID, svc.BusinessID, strings.TrimSpace(svc.Name), svc.DurationMinutes, svc.PriceCents, svc.Active,
	).Scan(&svc.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: save service: %w", err)
	}
	return &svc, nil
}
