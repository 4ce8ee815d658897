package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func TestGetAvailabilityOpenDay(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.svc.WithObserver(obs)

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday})
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, got.SlotStrings())
	assert.Equal(t, 60, got.DurationMinutes)
	assert.Empty(t, got.Reason)
	assert.Equal(t, []string{"open"}, obs.availability)
}

func TestGetAvailabilityUsesCatalogDuration(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday, ServiceType: "gel manicure"})
	require.NoError(t, err)
	assert.Equal(t, 90, got.DurationMinutes)
	assert.Equal(t, "16:00", got.SlotStrings()[len(got.Slots)-1])

	got, err = f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday, ServiceType: "gel manicure", DurationMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, got.DurationMinutes)

	got, err = f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday, ServiceType: "acrylic fill"})
	require.NoError(t, err)
	assert.Equal(t, 60, got.DurationMinutes)
}

func TestGetAvailabilityClosedDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, "555-201-0001", tuesday, hm(9, 0))

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: sunday})
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, ReasonClosed, got.Reason)
	assert.Empty(t, got.Slots)
	assert.Equal(t, "We're closed on Sunday.", got.Message)
}

func TestGetAvailabilityMissingHoursIsClosed(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: "biz-unknown", Date: tuesday})
	require.NoError(t, err)
	assert.Equal(t, ReasonClosed, got.Reason)
}

func TestGetAvailabilityFullyBooked(t *testing.T) {
	f := newFixture(t)
	for h := 9; h <= 16; h++ {
		f.book(t, fmt.Sprintf("555-201-%04d", h), tuesday, hm(h, 0))
	}

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday})
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, ReasonNoSlots, got.Reason)
	assert.Empty(t, got.Slots)
}

func TestGetAvailabilityValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{Date: tuesday})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday, DurationMinutes: -5})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAvailabilityJSON(t *testing.T) {
	a := Availability{BusinessID: testBusiness, Date: tuesday, Available: true, Slots: []civil.Time{hm(9, 0), hm(13, 30)}, DurationMinutes: 60}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []any{"09:00", "13:30"}, decoded["slots"])
	assert.Equal(t, "2025-09-09", decoded["date"])
}

func TestBookAppointmentRemovesSlot(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.svc.WithObserver(obs)

	res := f.book(t, "(555) 201-0001", tuesday, hm(9, 0))
	assert.NotEmpty(t, res.AppointmentID)
	assert.True(t, res.CustomerCreated)
	assert.Equal(t, "+15552010001", res.Appointment.CustomerPhone)
	assert.Equal(t, "Pedicure", res.Appointment.ServiceName)
	assert.Equal(t, int64(3500), res.Appointment.PriceCents)
	assert.Equal(t, StatusScheduled, res.Appointment.Status)
	assert.Equal(t, "You're booked for Pedicure on Tuesday, September 9 at 9 AM.", res.Message)

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, got.SlotStrings())

	assert.Equal(t, []string{EventBooked}, f.eventTypes())
	assert.Equal(t, []string{"web:booked"}, obs.bookings)

	stored, err := f.svc.GetAppointment(context.Background(), testBusiness, res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "Dana Reyes", stored.CustomerName)
}

func TestBookAppointmentReusesCustomerByPhone(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, "555-201-0001", tuesday, hm(9, 0))
	second := f.book(t, "+1 555 201 0001", tuesday, hm(11, 0))

	assert.True(t, first.CustomerCreated)
	assert.False(t, second.CustomerCreated)
	assert.Equal(t, first.Appointment.CustomerID, second.Appointment.CustomerID)
	assert.Equal(t, 1, f.store.CustomerCount(testBusiness))

	appts, err := f.svc.ListAppointments(context.Background(), testBusiness, tuesday)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, hm(9, 0), appts[0].StartTime)
	assert.Equal(t, hm(11, 0), appts[1].StartTime)
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.svc.WithObserver(obs)
	f.book(t, "555-201-0001", tuesday, hm(14, 0))

	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Ari Cole",
		CustomerPhone: "555-201-0002",
		Date:          tuesday,
		StartTime:     hm(14, 0),
		Source:        SourceSMS,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, KindSlotTaken, KindOf(err))
	assert.Equal(t, "sms:SlotTakenError", obs.bookings[len(obs.bookings)-1])
	assert.Equal(t, 1, f.store.CustomerCount(testBusiness))
}

func TestBookAppointmentOverlapWithLongerService(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-201-0001",
		ServiceType:   "Gel Manicure",
		Date:          tuesday,
		StartTime:     hm(10, 0),
		Source:        SourceVoice,
	})
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Ari Cole",
		CustomerPhone: "555-201-0002",
		Date:          tuesday,
		StartTime:     hm(11, 0),
		Source:        SourceVoice,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookAppointmentClosedDay(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-201-0001",
		Date:          sunday,
		StartTime:     hm(10, 0),
		Source:        SourceWeb,
	})
	assert.ErrorIs(t, err, ErrClosedDay)
	assert.Equal(t, KindClosedDay, KindOf(err))
	assert.Empty(t, f.eventTypes())
}

func TestBookAppointmentValidation(t *testing.T) {
	base := BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-201-0001",
		Date:          tuesday,
		StartTime:     hm(10, 0),
		Source:        SourceWeb,
	}
	tests := []struct {
		name  string
		mut   func(*BookRequest)
		field string
	}{
		{"missing business", func(r *BookRequest) { r.BusinessID = " " }, "businessId"},
		{"missing name", func(r *BookRequest) { r.CustomerName = "" }, "customerName"},
		{"missing phone", func(r *BookRequest) { r.CustomerPhone = "" }, "customerPhone"},
		{"garbage phone", func(r *BookRequest) { r.CustomerPhone = "12" }, "customerPhone"},
		{"bad email", func(r *BookRequest) { r.CustomerEmail = "not-an-email" }, "customerEmail"},
		{"missing date", func(r *BookRequest) { r.Date = civil.Date{} }, "date"},
		{"invalid time", func(r *BookRequest) { r.StartTime = civil.Time{Hour: 25} }, "time"},
		{"missing source", func(r *BookRequest) { r.Source = "" }, "bookingSource"},
		{"off-grid start", func(r *BookRequest) { r.StartTime = hm(10, 15) }, "time"},
		{"after hours", func(r *BookRequest) { r.StartTime = hm(17, 0) }, "time"},
		{"negative duration", func(r *BookRequest) { r.DurationMinutes = -1 }, "durationMinutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := base
			tt.mut(&req)
			_, err := f.svc.BookAppointment(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBookAppointmentConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	phones := []string{"555-201-0001", "555-201-0002"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for _, phone := range phones {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			_, err := f.svc.BookAppointment(context.Background(), BookRequest{
				BusinessID:    testBusiness,
				CustomerName:  "Racer",
				CustomerPhone: phone,
				Date:          wednesday,
				StartTime:     hm(14, 0),
				Source:        SourceVoice,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(phone)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, taken)
	appts, err := f.svc.ListAppointments(context.Background(), testBusiness, wednesday)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) WithinTx(context.Context, func(context.Context, Tx) error) error {
	return s.err
}

type blockingStore struct {
	*MemoryStore
}

func (blockingStore) WithinTx(ctx context.Context, _ func(context.Context, Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBookAppointmentStoreFailures(t *testing.T) {
	f := newFixture(t)
	req := BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-201-0001",
		Date:          tuesday,
		StartTime:     hm(10, 0),
		Source:        SourceWeb,
	}

	broken := NewService(failingStore{MemoryStore: f.store, err: errors.New("connection refused")}, f.catalog, Options{}, logging.New("error"))
	_, err := broken.BookAppointment(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, KindStore, KindOf(err))

	slow := NewService(blockingStore{MemoryStore: f.store}, f.catalog, Options{StoreTimeout: 20 * time.Millisecond}, logging.New("error"))
	_, err = slow.BookAppointment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestInactiveBusinessRejectsRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, "555-201-0001", tuesday, hm(9, 0))

	b, err := f.catalog.GetBusiness(ctx, testBusiness)
	require.NoError(t, err)
	b.Active = false
	require.NoError(t, f.catalog.SaveBusiness(ctx, *b))

	_, err = f.svc.GetAvailability(ctx, AvailabilityQuery{BusinessID: testBusiness, Date: tuesday})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.BookAppointment(ctx, BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Ari Cole",
		CustomerPhone: "555-201-0002",
		Date:          tuesday,
		StartTime:     hm(11, 0),
		Source:        SourceSMS,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "businessId", verr.Field)

	_, err = f.svc.Reschedule(ctx, RescheduleRequest{
		BusinessID:    testBusiness,
		AppointmentID: booked.AppointmentID,
		Date:          wednesday,
		StartTime:     hm(10, 0),
	})
	assert.ErrorIs(t, err, ErrValidation)

	appts, err := f.store.ListAppointments(ctx, testBusiness, tuesday)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(invalid("date", "bad")))
	assert.Equal(t, KindClosedDay, KindOf(ErrClosedDay))
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
	assert.Equal(t, KindTransition, KindOf(ErrInvalidTransition))
	assert.Equal(t, KindStore, KindOf(errors.New("mystery")))
	assert.Equal(t, KindSlotTaken, KindOf(storeError("insert", ErrSlotTaken)))
}

func TestAppointmentJSONRoundTrip(t *testing.T) {
	appt := Appointment{ID: "a-1", BusinessID: testBusiness, Date: tuesday, StartTime: hm(14, 30), DurationMinutes: 60, Status: StatusScheduled}
	data, err := json.Marshal(appt)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startTime":"14:30"`)

	var back Appointment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, hm(14, 30), back.StartTime)
	assert.Equal(t, tuesday, back.Date)
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(555) 201-0001", "US")
	require.NoError(t, err)
	assert.Equal(t, "+15552010001", got)

	got, err = NormalizePhone("+44 20 7946 0958", "US")
	require.NoError(t, err)
	assert.Equal(t, "+442079460958", got)

	_, err = NormalizePhone("abc", "US")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirmationMessageWithoutService(t *testing.T) {
	msg := confirmationMessage(&Appointment{Date: tuesday, StartTime: hm(14, 30)})
	assert.Equal(t, "You're booked for your appointment on Tuesday, September 9 at "+clock.Spoken(hm(14, 30))+".", msg)
}
