package booking

import (
	"time"

	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// Outbox event types appended in the same transaction as the state change.
const (
	EventBooked      = "appointment.booked.v1"
	EventConfirmed   = "appointment.confirmed.v1"
	EventCancelled   = "appointment.cancelled.v1"
	EventCompleted   = "appointment.completed.v1"
	EventRescheduled = "appointment.rescheduled.v1"
)

// AppointmentEvent is the payload of every appointment outbox event.
type AppointmentEvent struct {
	AppointmentID         string    `json:"appointmentId"`
	BusinessID            string    `json:"businessId"`
	CustomerID            string    `json:"customerId"`
	CustomerName          string    `json:"customerName"`
	CustomerPhone         string    `json:"customerPhone"`
	CustomerEmail         string    `json:"customerEmail,omitempty"`
	ServiceName           string    `json:"serviceType"`
	Date                  string    `json:"date"`
	StartTime             string    `json:"startTime"`
	DurationMinutes       int       `json:"durationMinutes"`
	Status                Status    `json:"status"`
	Source                Source    `json:"bookingSource"`
	PreviousAppointmentID string    `json:"previousAppointmentId,omitempty"`
	Reason                string    `json:"reason,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
}

func newAppointmentEvent(a *Appointment, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID:   a.ID,
		BusinessID:      a.BusinessID,
		CustomerID:      a.CustomerID,
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		CustomerEmail:   a.CustomerEmail,
		ServiceName:     a.ServiceName,
		Date:            a.Date.String(),
		StartTime:       clock.FormatHHMM(a.StartTime),
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
		Source:          a.Source,
		Reason:          a.CancelReason,
		OccurredAt:      at.UTC(),
	}
}
