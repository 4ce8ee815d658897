package booking

import (
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the appointment still occupies its slot.
// Completed appointments keep their interval; only cancellation frees it.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCompleted || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Source tags the channel an appointment was booked through.
type Source string

const (
	SourceVoice     Source = "voice"
	SourceSMS       Source = "sms"
	SourceWeb       Source = "web"
	SourceDashboard Source = "dashboard"
	SourceCLI       Source = "cli"
)

// Customer is identified within a business by phone number.
type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// SplitName breaks a free-form name into first and last parts.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// Appointment is a booked interval for one customer. Service name and
// price are copied at booking time so later catalog edits do not rewrite
// history.
type Appointment struct {
	ID              string     `json:"id"`
	BusinessID      string     `json:"businessId"`
	CustomerID      string     `json:"customerId"`
	CustomerName    string     `json:"customerName,omitempty"`
	CustomerPhone   string     `json:"customerPhone,omitempty"`
	CustomerEmail   string     `json:"customerEmail,omitempty"`
	ServiceID       string     `json:"serviceId,omitempty"`
	ServiceName     string     `json:"serviceType"`
	PriceCents      int64      `json:"priceCents"`
	Date            civil.Date `json:"date"`
	StartTime       civil.Time `json:"-"`
	DurationMinutes int        `json:"durationMinutes"`
	Status          Status     `json:"status"`
	Source          Source     `json:"bookingSource"`
	RescheduledFrom string     `json:"rescheduledFrom,omitempty"`
	CancelReason    string     `json:"cancelReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Interval returns the half-open [start, end) minutes-since-midnight span.
func (a *Appointment) Interval() Interval {
	start := clock.Minutes(a.StartTime)
	return Interval{Start: start, End: start + a.DurationMinutes}
}

// EndsAt returns the wall-clock end of the appointment in loc.
func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	return clock.At(a.Date, a.StartTime, loc).Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Interval is a half-open span of minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether the half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

type appointmentJSON Appointment

// MarshalJSON renders StartTime as "HH:MM".
func (a Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		appointmentJSON
		StartTime string `json:"startTime"`
	}{appointmentJSON(a), clock.FormatHHMM(a.StartTime)})
}

// UnmarshalJSON accepts the shape written by MarshalJSON.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var raw struct {
		appointmentJSON
		StartTime string `json:"startTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Appointment(raw.appointmentJSON)
	if raw.StartTime != "" {
		t, err := clock.ParseHHMM(raw.StartTime)
		if err != nil {
			return err
		}
		a.StartTime = t
	}
	return nil
}
