// Package bookingtest builds an in-memory booking engine for adapter tests.
package bookingtest

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const (
	BusinessID    = "biz-1"
	BusinessPhone = "+15550001111"
)

// Now is Monday 2025-09-08, noon in New York.
var Now = time.Date(2025, 9, 8, 16, 0, 0, 0, time.UTC)

var (
	Tuesday = civil.Date{Year: 2025, Month: time.September, Day: 9}
	Sunday  = civil.Date{Year: 2025, Month: time.September, Day: 14}
)

// Env is a seeded engine: one New York salon open 09:00-18:00 Monday to
// Saturday and closed Sunday, offering a 90 minute Gel Manicure and a
// 60 minute Pedicure.
type Env struct {
	Service *booking.Service
	Store   *booking.MemoryStore
	Catalog *business.MemoryStore
	Outbox  *events.MemoryOutbox
}

func New(t testing.TB) *Env {
	t.Helper()
	ctx := context.Background()
	catalog := business.NewMemoryStore()
	require.NoError(t, catalog.SaveBusiness(ctx, business.Business{
		ID:          BusinessID,
		Name:        "Polished Nail Studio",
		Timezone:    "America/New_York",
		PhoneNumber: BusinessPhone,
		Active:      true,
	}))
	week := business.WeeklyHours{{Day: time.Sunday, Closed: true}}
	for d := time.Monday; d <= time.Saturday; d++ {
		week = append(week, business.DayHours{Day: d, Open: civil.Time{Hour: 9}, Close: civil.Time{Hour: 18}})
	}
	require.NoError(t, catalog.SetHours(ctx, BusinessID, week))
	for _, svc := range []business.Service{
		{BusinessID: BusinessID, Name: "Gel Manicure", DurationMinutes: 90, PriceCents: 4500, Active: true},
		{BusinessID: BusinessID, Name: "Pedicure", DurationMinutes: 60, PriceCents: 3500, Active: true},
	} {
		_, err := catalog.SaveService(ctx, svc)
		require.NoError(t, err)
	}

	outbox := events.NewMemoryOutbox()
	store := booking.NewMemoryStore(outbox)
	svc := booking.NewService(store, catalog, booking.Options{
		StepMinutes:            60,
		DefaultDurationMinutes: 60,
		Now:                    func() time.Time { return Now },
	}, logging.New("error"))
	return &Env{Service: svc, Store: store, Catalog: catalog, Outbox: outbox}
}

// Book places a Pedicure through the web channel.
func (e *Env) Book(t testing.TB, phone string, date civil.Date, start civil.Time) *booking.BookResult {
	t.Helper()
	res, err := e.Service.BookAppointment(context.Background(), booking.BookRequest{
		BusinessID:    BusinessID,
		CustomerName:  "Dana Reyes",
		CustomerPhone: phone,
		ServiceType:   "Pedicure",
		Date:          date,
		StartTime:     start,
		Source:        booking.SourceWeb,
	})
	require.NoError(t, err)
	return res
}
