package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for availability lookups, booking attempts
// and lifecycle transitions. It satisfies booking.Observer.
type BookingMetrics struct {
	availabilityTotal *prometheus.CounterVec
	bookingTotal      *prometheus.CounterVec
	transitionTotal   *prometheus.CounterVec
	webhookTotal      *prometheus.CounterVec
	deliveryLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nailspa",
			Subsystem: "booking",
			Name:      "availability_total",
			Help:      "Availability lookups by result reason",
		}, []string{"reason"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nailspa",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by channel and outcome",
		}, []string{"source", "outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nailspa",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nailspa",
			Subsystem: "webhooks",
			Name:      "received_total",
			Help:      "Inbound webhooks by provider and response status",
		}, []string{"provider", "status"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nailspa",
			Subsystem: "events",
			Name:      "delivery_latency_seconds",
			Help:      "Latency of outbox event delivery",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.bookingTotal, m.transitionTotal, m.webhookTotal, m.deliveryLatency)
	return m
}

func (m *BookingMetrics) ObserveAvailability(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "open"
	}
	m.availabilityTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveBooking(source, outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(source, outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(status).Inc()
}

// ObserveWebhook counts an inbound provider webhook by its HTTP status class.
func (m *BookingMetrics) ObserveWebhook(provider string, status int) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, statusClass(status)).Inc()
}

func (m *BookingMetrics) ObserveDeliveryLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveryLatency.WithLabelValues(eventType).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
