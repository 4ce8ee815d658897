package business

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// ErrNotFound is returned when a business or service does not exist.
var ErrNotFound = errors.New("business: not found")

// Business is a tenant salon. Timezone anchors every date and time the
// engine computes for it.
type Business struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Timezone    string `json:"timezone"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Active      bool   `json:"active"`
}

// Location returns the business timezone, UTC when unset or invalid.
func (b *Business) Location() *time.Location {
	if b == nil {
		return time.UTC
	}
	return clock.Location(b.Timezone)
}

// DayHours is the opening window for one weekday (0=Sunday ... 6=Saturday).
type DayHours struct {
	Day    time.Weekday `json:"day_of_week"`
	Closed bool         `json:"is_closed"`
	Open   civil.Time   `json:"open_time"`
	Close  civil.Time   `json:"close_time"`
}

// Validate enforces openTime < closeTime on open days.
func (d DayHours) Validate() error {
	if d.Day < time.Sunday || d.Day > time.Saturday {
		return fmt.Errorf("business: invalid weekday %d", d.Day)
	}
	if d.Closed {
		return nil
	}
	if !d.Open.IsValid() || !d.Close.IsValid() {
		return fmt.Errorf("business: invalid hours for %s", d.Day)
	}
	if clock.Minutes(d.Open) >= clock.Minutes(d.Close) {
		return fmt.Errorf("business: %s opens at %s but closes at %s", d.Day, clock.FormatHHMM(d.Open), clock.FormatHHMM(d.Close))
	}
	return nil
}

// IsOpen reports whether the day has a usable opening window.
func (d *DayHours) IsOpen() bool {
	return d != nil && !d.Closed && clock.Minutes(d.Open) < clock.Minutes(d.Close)
}

// WeeklyHours is the full week for a business, at most one row per weekday.
type WeeklyHours []DayHours

// ForDay returns the row for weekday, or nil when none is configured.
func (w WeeklyHours) ForDay(day time.Weekday) *DayHours {
	for i := range w {
		if w[i].Day == day {
			h := w[i]
			return &h
		}
	}
	return nil
}

// Validate checks every row and rejects duplicate weekdays.
func (w WeeklyHours) Validate() error {
	seen := make(map[time.Weekday]bool, len(w))
	for _, d := range w {
		if seen[d.Day] {
			return fmt.Errorf("business: duplicate hours for %s", d.Day)
		}
		seen[d.Day] = true
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Sorted returns a copy ordered Sunday first.
func (w WeeklyHours) Sorted() WeeklyHours {
	out := append(WeeklyHours(nil), w...)
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Service is a catalog entry. Duration drives slot sizing; price is
// denormalised onto appointments at booking time.
type Service struct {
	ID              string `json:"id"`
	BusinessID      string `json:"businessId"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
	PriceCents      int64  `json:"priceCents"`
	Active          bool   `json:"active"`
}

// Validate enforces positive duration and non-negative price.
func (s Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("business: service name required")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("business: service %q needs a positive duration", s.Name)
	}
	if s.PriceCents < 0 {
		return fmt.Errorf("business: service %q has a negative price", s.Name)
	}
	return nil
}

// MatchService finds an active service by name, ignoring case and
// surrounding whitespace. A catalog name contained in the query also
// matches so "a gel manicure please" resolves to "Gel Manicure".
func MatchService(services []Service, query string) (*Service, bool) {
	key := normalizeServiceKey(query)
	if key == "" {
		return nil, false
	}
	var best *Service
	for i := range services {
		svc := services[i]
		if !svc.Active {
			continue
		}
		name := normalizeServiceKey(svc.Name)
		if name == key {
			return &svc, true
		}
		if name != "" && strings.Contains(key, name) {
			if best == nil || len(name) > len(normalizeServiceKey(best.Name)) {
				best = &svc
			}
		}
	}
	return best, best != nil
}

func normalizeServiceKey(service string) string {
	return strings.Join(strings.Fields(strings.ToLower(service)), " ")
}
