// Package calendar holds the event data model shared by the expansion
// engine: events, date ranges, the event store, and partial-update
// values.
package calendar

import (
	"time"

	"github.com/kalendr/librecur/recurrence"
)

// Event is a calendar event. An event with a non-nil Rule is a master
// representing a whole series; an event with a non-nil OccurrenceID is
// one materialized occurrence of a series. The two are mutually
// exclusive. All instants share one clock reference (UTC); no timezone
// conversion happens in this module.
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool

	// Rule marks the event as a series master.
	Rule *recurrence.Rule

	// OccurrenceID is the normalized original date of the occurrence
	// this event materializes, keeping its identity stable across
	// reschedules.
	OccurrenceID *time.Time

	// Descriptive fields carried through expansion untouched.
	Description string
	Location    string
	URL         string
	Categories  []string
}

// IsMaster reports whether the event carries a recurrence rule.
func (e Event) IsMaster() bool { return e.Rule != nil }

// IsOccurrence reports whether the event is a materialized occurrence.
func (e Event) IsOccurrence() bool { return e.OccurrenceID != nil }

// Duration is the span between start and end.
func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

// Validate checks the structural invariants of the event.
func (e Event) Validate() error {
	if e.ID == "" {
		return &Error{Type: ErrInvalidInput, Message: "event id must not be empty"}
	}
	if e.Rule != nil && e.OccurrenceID != nil {
		return &Error{Type: ErrInvalidInput, Message: "recurrence rule and occurrence id are mutually exclusive"}
	}
	if e.End.Before(e.Start) {
		return &Error{Type: ErrInvalidInput, Message: "event end precedes its start"}
	}
	return nil
}

// Clone returns a deep copy that shares no mutable state with e.
func (e Event) Clone() Event {
	out := e
	if e.Rule != nil {
		rule := *e.Rule
		rule.ByWeekday = append([]time.Weekday(nil), e.Rule.ByWeekday...)
		rule.ByMonthDay = append([]int(nil), e.Rule.ByMonthDay...)
		rule.ByMonth = append([]time.Month(nil), e.Rule.ByMonth...)
		rule.BySetPos = append([]int(nil), e.Rule.BySetPos...)
		out.Rule = &rule
	}
	if e.OccurrenceID != nil {
		id := *e.OccurrenceID
		out.OccurrenceID = &id
	}
	out.Categories = append([]string(nil), e.Categories...)
	return out
}

// OverlapsRange reports whether the event intersects the half-open
// range r. Zero-duration events count as overlapping when their start
// lies inside r.
func (e Event) OverlapsRange(r DateRange) bool {
	if e.End.Equal(e.Start) {
		return r.Contains(e.Start)
	}
	return e.Start.Before(r.End) && e.End.After(r.Start)
}

// NormalizeDate strips the time-of-day from t: hour, minute, second
// and sub-second components are zeroed in UTC. Exception lookups key
// on this form so timed and all-day events normalize identically.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is a half-open window [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a range, failing on an inverted window.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if !end.After(start) {
		return DateRange{}, &Error{Type: ErrInvalidInput, Message: "range end must be after range start"}
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains reports whether t lies inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether the range fully encloses other.
func (r DateRange) Covers(other DateRange) bool {
	return !r.Start.After(other.Start) && !r.End.Before(other.End)
}

// IsZero reports whether the range is the zero value.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}
