package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

var bookingTracer trace.Tracer = otel.Tracer("nailspa.internal.booking")

// Options tunes the engine.
type Options struct {
	StepMinutes            int
	DefaultDurationMinutes int
	LastSlot               LastSlotPolicy
	StoreTimeout           time.Duration
	PhoneRegion            string
	Now                    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StepMinutes <= 0 {
		o.StepMinutes = 60
	}
	if o.DefaultDurationMinutes <= 0 {
		o.DefaultDurationMinutes = 60
	}
	if o.LastSlot == "" {
		o.LastSlot = LastSlotStrict
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.PhoneRegion == "" {
		o.PhoneRegion = "US"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Observer receives outcome counts; metrics.BookingMetrics satisfies it.
type Observer interface {
	ObserveAvailability(reason string)
	ObserveBooking(source, outcome string)
	ObserveTransition(status string)
}

type noopObserver struct{}

func (noopObserver) ObserveAvailability(string)    {}
func (noopObserver) ObserveBooking(string, string) {}
func (noopObserver) ObserveTransition(string)      {}

// Service is the availability and booking engine shared by every channel.
type Service struct {
	store    Store
	catalog  business.Store
	opts     Options
	observer Observer
	logger   *logging.Logger
}

// NewService constructs the engine.
func NewService(store Store, catalog business.Store, opts Options, logger *logging.Logger) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if catalog == nil {
		panic("booking: business store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		opts:     opts.withDefaults(),
		observer: noopObserver{},
		logger:   logger,
	}
}

// WithObserver attaches an outcome observer.
func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.observer = o
	}
	return s
}

// Now returns the engine's clock reading.
func (s *Service) Now() time.Time {
	return s.opts.Now()
}

// Business loads a business profile.
func (s *Service) Business(ctx context.Context, businessID string) (*business.Business, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	b, err := s.catalog.GetBusiness(ctx, businessID)
	if errors.Is(err, business.ErrNotFound) {
		return nil, invalid("businessId", "unknown business")
	}
	if err != nil {
		return nil, storeError("get business", err)
	}
	return b, nil
}

// ensureAccepting rejects requests for a deactivated business. A business
// without a profile row is governed by its hours alone.
func (s *Service) ensureAccepting(ctx context.Context, businessID string) error {
	b, err := s.catalog.GetBusiness(ctx, businessID)
	if errors.Is(err, business.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError("get business", err)
	}
	if !b.Active {
		return invalid("businessId", "business is not accepting bookings")
	}
	return nil
}

// ListAppointments returns every appointment of a business on date.
func (s *Service) ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]Appointment, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	appts, err := s.store.ListAppointments(ctx, businessID, date)
	if err != nil {
		return nil, storeError("list appointments", err)
	}
	return appts, nil
}

// GetAppointment loads one appointment.
func (s *Service) GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	appt, err := s.store.GetAppointment(ctx, businessID, id)
	if err != nil {
		return nil, storeError("get appointment", err)
	}
	return appt, nil
}

// bounded applies the store timeout.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// resolveService picks the duration and catalog entry for a request. An
// explicit duration wins over the catalog; an unknown service falls back
// to the configured default duration.
func (s *Service) resolveService(ctx context.Context, businessID, serviceType string, duration int) (*business.Service, int, error) {
	if duration < 0 {
		return nil, 0, invalid("durationMinutes", "duration must be positive")
	}
	var svc *business.Service
	if strings.TrimSpace(serviceType) != "" {
		services, err := s.catalog.ListServices(ctx, businessID)
		if err != nil {
			return nil, 0, storeError("list services", err)
		}
		if match, ok := business.MatchService(services, serviceType); ok {
			svc = match
		}
	}
	switch {
	case duration > 0:
	case svc != nil:
		duration = svc.DurationMinutes
	default:
		duration = s.opts.DefaultDurationMinutes
	}
	return svc, duration, nil
}
