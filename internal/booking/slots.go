package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// LastSlotPolicy decides how close to closing time a service may end.
type LastSlotPolicy string

const (
	// LastSlotStrict admits a start only if the service ends before close.
	LastSlotStrict LastSlotPolicy = "strict"
	// LastSlotInclusive admits starts up to close minus the duration.
	LastSlotInclusive LastSlotPolicy = "inclusive"
)

// ParseLastSlotPolicy maps a config value to a policy, defaulting to strict.
func ParseLastSlotPolicy(v string) LastSlotPolicy {
	if LastSlotPolicy(strings.ToLower(strings.TrimSpace(v))) == LastSlotInclusive {
		return LastSlotInclusive
	}
	return LastSlotStrict
}

// Reason explains an empty availability result.
type Reason string

const (
	ReasonClosed  Reason = "closed"
	ReasonNoSlots Reason = "no_slots"
)

// SlotRules are the calculator parameters.
type SlotRules struct {
	StepMinutes     int
	DurationMinutes int
	LastSlot        LastSlotPolicy
}

// CalculateSlots returns the ordered start times on a day with the given
// hours that fit a service of rules.DurationMinutes without overlapping
// any of the busy intervals. It has no side effects; nil hours or a closed
// day yields no slots.
func CalculateSlots(hours *business.DayHours, busy []Interval, rules SlotRules) []civil.Time {
	if !hours.IsOpen() || rules.DurationMinutes <= 0 {
		return nil
	}
	step := rules.StepMinutes
	if step <= 0 {
		step = 60
	}
	open := clock.Minutes(hours.Open)
	closeAt := clock.Minutes(hours.Close)

	lastStart := closeAt - rules.DurationMinutes
	if rules.LastSlot != LastSlotInclusive {
		lastStart--
	}

	var slots []civil.Time
	for start := open; start <= lastStart; start += step {
		candidate := Interval{Start: start, End: start + rules.DurationMinutes}
		if overlapsAny(candidate, busy) {
			continue
		}
		slots = append(slots, clock.FromMinutes(start))
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// busyIntervals collects the intervals of non-cancelled appointments, skipping
// the one with id exclude.
func busyIntervals(appts []Appointment, exclude string) []Interval {
	out := make([]Interval, 0, len(appts))
	for i := range appts {
		if appts[i].Status == StatusCancelled {
			continue
		}
		if exclude != "" && appts[i].ID == exclude {
			continue
		}
		out = append(out, appts[i].Interval())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func containsSlot(slots []civil.Time, t civil.Time) bool {
	for _, s := range slots {
		if s.Hour == t.Hour && s.Minute == t.Minute {
			return true
		}
	}
	return false
}

// availabilityMessage is the short display text for an availability result.
func availabilityMessage(date civil.Date, reason Reason, slots []civil.Time) string {
	day := clock.SpokenDate(date)
	switch reason {
	case ReasonClosed:
		return fmt.Sprintf("We're closed on %s.", date.In(time.UTC).Weekday())
	case ReasonNoSlots:
		return fmt.Sprintf("We're fully booked on %s.", day)
	}
	if len(slots) == 1 {
		return fmt.Sprintf("1 open time on %s.", day)
	}
	return fmt.Sprintf("%d open times on %s.", len(slots), day)
}
