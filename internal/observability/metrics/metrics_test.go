package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("sms", "booked")
	m.ObserveBooking("sms", "booked")
	m.ObserveBooking("voice", "slot_taken")
	m.ObserveAvailability("")
	m.ObserveAvailability("closed")
	m.ObserveTransition("confirmed")
	m.ObserveWebhook("stripe", 200)
	m.ObserveWebhook("stripe", 503)
	m.ObserveDeliveryLatency("appointment.booked", 0.2)

	assert.Equal(t, 2.0, counterValue(t, reg, "nailspa_booking_attempts_total", map[string]string{"source": "sms", "outcome": "booked"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nailspa_booking_attempts_total", map[string]string{"source": "voice", "outcome": "slot_taken"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nailspa_booking_availability_total", map[string]string{"reason": "open"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nailspa_booking_availability_total", map[string]string{"reason": "closed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nailspa_booking_transitions_total", map[string]string{"status": "confirmed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "nailspa_webhooks_received_total", map[string]string{"provider": "stripe", "status": "5xx"}))
}

func TestBookingMetricsDefaultRegistry(t *testing.T) {
	m := NewBookingMetrics(nil)
	m.ObserveBooking("web", "booked")
	prometheus.DefaultRegisterer.Unregister(m.availabilityTotal)
	prometheus.DefaultRegisterer.Unregister(m.bookingTotal)
	prometheus.DefaultRegisterer.Unregister(m.transitionTotal)
	prometheus.DefaultRegisterer.Unregister(m.webhookTotal)
	prometheus.DefaultRegisterer.Unregister(m.deliveryLatency)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAvailability("closed")
	m.ObserveBooking("web", "booked")
	m.ObserveTransition("cancelled")
	m.ObserveWebhook("square", 200)
	m.ObserveDeliveryLatency("appointment.booked", 0.1)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
}
