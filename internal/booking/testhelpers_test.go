package booking

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const testBusiness = "biz-1"

var (
	tuesday   = civil.Date{Year: 2025, Month: time.September, Day: 9}
	wednesday = civil.Date{Year: 2025, Month: time.September, Day: 10}
	sunday    = civil.Date{Year: 2025, Month: time.September, Day: 14}
)

type fixture struct {
	svc     *Service
	store   *MemoryStore
	catalog *business.MemoryStore
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	catalog := business.NewMemoryStore()
	require.NoError(t, catalog.SaveBusiness(ctx, business.Business{
		ID:          testBusiness,
		Name:        "Polished Nail Studio",
		Timezone:    "America/New_York",
		PhoneNumber: "+15550001111",
		Active:      true,
	}))

	week := business.WeeklyHours{{Day: time.Sunday, Closed: true}}
	for d := time.Monday; d <= time.Saturday; d++ {
		week = append(week, business.DayHours{Day: d, Open: hm(9, 0), Close: hm(18, 0)})
	}
	require.NoError(t, catalog.SetHours(ctx, testBusiness, week))

	_, err := catalog.SaveService(ctx, business.Service{BusinessID: testBusiness, Name: "Gel Manicure", DurationMinutes: 90, PriceCents: 4500, Active: true})
	require.NoError(t, err)
	_, err = catalog.SaveService(ctx, business.Service{BusinessID: testBusiness, Name: "Pedicure", DurationMinutes: 60, PriceCents: 3500, Active: true})
	require.NoError(t, err)

	f := &fixture{
		store:   NewMemoryStore(nil),
		catalog: catalog,
		now:     time.Date(2025, 9, 8, 16, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, catalog, Options{
		StepMinutes:            60,
		DefaultDurationMinutes: 60,
		Now:                    func() time.Time { return f.now },
	}, logging.New("error"))
	return f
}

func (f *fixture) book(t *testing.T, phone string, date civil.Date, start civil.Time) *BookResult {
	t.Helper()
	res, err := f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: phone,
		ServiceType:   "Pedicure",
		Date:          date,
		StartTime:     start,
		Source:        SourceWeb,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, e := range f.store.Outbox().Entries() {
		out = append(out, e.Type)
	}
	return out
}

type recordingObserver struct {
	availability []string
	bookings     []string
	transitions  []string
}

func (o *recordingObserver) ObserveAvailability(reason string) {
	o.availability = append(o.availability, reason)
}

func (o *recordingObserver) ObserveBooking(source, outcome string) {
	o.bookings = append(o.bookings, source+":"+outcome)
}

func (o *recordingObserver) ObserveTransition(status string) {
	o.transitions = append(o.transitions, status)
}
