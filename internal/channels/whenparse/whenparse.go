// Package whenparse pulls an appointment day and time out of free text such
// as "tomorrow at 3pm" or "friday 10:30".
package whenparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Result is a resolved day and time. The Defaulted flags report which
// parts came from the fallback rather than the text.
type Result struct {
	Date          civil.Date
	Time          civil.Time
	DateDefaulted bool
	TimeDefaulted bool
}

// Parser resolves phrases relative to an injected reference time.
type Parser struct {
	fallbackDayOffset int
	fallbackTime      civil.Time
}

// New builds a parser. Text without a day resolves to fallbackDayOffset
// days after today; text without a time resolves to fallbackTime.
func New(fallbackDayOffset int, fallbackTime civil.Time) *Parser {
	if fallbackDayOffset < 0 {
		fallbackDayOffset = 0
	}
	return &Parser{fallbackDayOffset: fallbackDayOffset, fallbackTime: fallbackTime}
}

// Default falls back to tomorrow at 2 PM.
func Default() *Parser {
	return New(1, civil.Time{Hour: 14})
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	monthDayRe  = regexp.MustCompile(`\b(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	weekdayRe   = regexp.MustCompile(`\b(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(?:day|sday|nesday|rsday|urday)?\b`)
	ampmRe      = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*([ap])\.?\s?m\b\.?`)
	clockRe     = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe      = regexp.MustCompile(`\bnoon\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "thur": time.Thursday,
	"thurs": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"sun": time.Sunday,
}

// Parse extracts a day and time from text. now is converted to loc before
// "today" is decided.
func (p *Parser) Parse(text string, now time.Time, loc *time.Location) Result {
	if loc == nil {
		loc = time.UTC
	}
	today := civil.DateOf(now.In(loc))
	lower := strings.ToLower(text)

	var res Result
	if d, ok := parseDate(lower, today); ok {
		res.Date = d
	} else {
		res.Date = today.AddDays(p.fallbackDayOffset)
		res.DateDefaulted = true
	}
	if t, ok := parseTime(lower); ok {
		res.Time = t
	} else {
		res.Time = p.fallbackTime
		res.TimeDefaulted = true
	}
	return res
}

// ParseDate resolves only the day part.
func (p *Parser) ParseDate(text string, now time.Time, loc *time.Location) (civil.Date, bool) {
	res := p.Parse(text, now, loc)
	return res.Date, !res.DateDefaulted
}

// ParseTime resolves only the time part.
func (p *Parser) ParseTime(text string) (civil.Time, bool) {
	return parseTime(strings.ToLower(text))
}

func parseDate(s string, today civil.Date) (civil.Date, bool) {
	switch {
	case strings.Contains(s, "day after tomorrow"):
		return today.AddDays(2), true
	case strings.Contains(s, "tomorrow"):
		return today.AddDays(1), true
	case strings.Contains(s, "today"), strings.Contains(s, "tonight"):
		return today, true
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		d := civil.Date{Year: atoi(m[1]), Month: time.Month(atoi(m[2])), Day: atoi(m[3])}
		if d.IsValid() {
			return d, true
		}
	}
	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		if d, ok := upcoming(today, months[m[1][:3]], atoi(m[2])); ok {
			return d, true
		}
	}
	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		month, day := time.Month(atoi(m[1])), atoi(m[2])
		if m[3] != "" {
			year := atoi(m[3])
			if year < 100 {
				year += 2000
			}
			d := civil.Date{Year: year, Month: month, Day: day}
			if d.IsValid() {
				return d, true
			}
		} else if d, ok := upcoming(today, month, day); ok {
			return d, true
		}
	}
	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		target := weekdays[m[1]]
		ahead := (int(target) - int(today.In(time.UTC).Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDays(ahead), true
	}
	return civil.Date{}, false
}

// upcoming resolves a month and day without a year to this year, or next
// year once that date has passed.
func upcoming(today civil.Date, month time.Month, day int) (civil.Date, bool) {
	d := civil.Date{Year: today.Year, Month: month, Day: day}
	if !d.IsValid() {
		return civil.Date{}, false
	}
	if d.Before(today) {
		d.Year++
		if !d.IsValid() {
			return civil.Date{}, false
		}
	}
	return d, true
}

func parseTime(s string) (civil.Time, bool) {
	if m := ampmRe.FindStringSubmatch(s); m != nil {
		h := atoi(m[1])
		if h >= 1 && h <= 12 {
			minute := 0
			if m[2] != "" {
				minute = atoi(m[2])
			}
			h %= 12
			if m[3] == "p" {
				h += 12
			}
			return civil.Time{Hour: h, Minute: minute}, true
		}
	}
	if noonRe.MatchString(s) {
		return civil.Time{Hour: 12}, true
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		return civil.Time{Hour: atoi(m[1]), Minute: atoi(m[2])}, true
	}
	return civil.Time{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
