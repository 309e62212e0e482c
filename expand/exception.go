// Package expand is the recurrence expansion engine: it answers
// "which events occur within this window" for masters and standalone
// events, applies per-occurrence exceptions, and keeps a per-series
// occurrence cache that is patched in place on single-occurrence edits
// instead of being rebuilt.
package expand

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/mo"

	"github.com/kalendr/librecur/calendar"
)

// ExceptionType classifies a per-occurrence override.
type ExceptionType string

const (
	ExceptionDeleted     ExceptionType = "deleted"
	ExceptionRescheduled ExceptionType = "rescheduled"
	ExceptionModified    ExceptionType = "modified"
)

// Exception overrides a single occurrence of a series, keyed by the
// occurrence's normalized original date. NewDate is present iff the
// type is rescheduled; Replacement iff the type is modified.
type Exception struct {
	Type         ExceptionType
	OriginalDate time.Time
	NewDate      mo.Option[time.Time]
	Replacement  mo.Option[calendar.Event]
}

// NewDeletedException removes the occurrence on the given date.
func NewDeletedException(original time.Time) Exception {
	return Exception{
		Type:         ExceptionDeleted,
		OriginalDate: calendar.NormalizeDate(original),
	}
}

// NewRescheduledException moves the occurrence on original to start at
// newStart instead, keeping its identity.
func NewRescheduledException(original, newStart time.Time) Exception {
	return Exception{
		Type:         ExceptionRescheduled,
		OriginalDate: calendar.NormalizeDate(original),
		NewDate:      mo.Some(newStart),
	}
}

// NewModifiedException replaces the occurrence on original with the
// given event verbatim.
func NewModifiedException(original time.Time, replacement calendar.Event) Exception {
	return Exception{
		Type:         ExceptionModified,
		OriginalDate: calendar.NormalizeDate(original),
		Replacement:  mo.Some(replacement.Clone()),
	}
}

// Validate checks that the payload matches the exception type.
func (x Exception) Validate() error {
	switch x.Type {
	case ExceptionDeleted:
		if x.NewDate.IsPresent() || x.Replacement.IsPresent() {
			return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "deleted exception carries no payload"}
		}
	case ExceptionRescheduled:
		if x.NewDate.IsAbsent() {
			return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "rescheduled exception requires a new date"}
		}
		if x.Replacement.IsPresent() {
			return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "rescheduled exception carries no replacement event"}
		}
	case ExceptionModified:
		if x.Replacement.IsAbsent() {
			return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "modified exception requires a replacement event"}
		}
		if x.NewDate.IsPresent() {
			return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "modified exception carries no new date"}
		}
	default:
		return &calendar.Error{Type: calendar.ErrInvalidInput, Message: fmt.Sprintf("unknown exception type %q", x.Type)}
	}
	if x.OriginalDate.IsZero() {
		return &calendar.Error{Type: calendar.ErrInvalidInput, Message: "exception requires an original date"}
	}
	return nil
}

// normalized returns a copy with the original date normalized and the
// replacement deep-copied, so stored exceptions share no state with
// the caller.
func (x Exception) normalized() Exception {
	out := x
	out.OriginalDate = calendar.NormalizeDate(x.OriginalDate)
	if ev, ok := x.Replacement.Get(); ok {
		out.Replacement = mo.Some(ev.Clone())
	}
	return out
}

// ExceptionStore is a sparse per-series map from normalized occurrence
// date to exception. Like the event store it is exclusively owned by
// one engine and returns snapshots only.
type ExceptionStore struct {
	buckets map[string]map[time.Time]Exception
}

// NewExceptionStore creates an empty exception store.
func NewExceptionStore() *ExceptionStore {
	return &ExceptionStore{buckets: make(map[string]map[time.Time]Exception)}
}

// Add stores the exception under (seriesID, normalized original
// date), overwriting any previous exception for that date, and returns
// the stored value.
func (s *ExceptionStore) Add(seriesID string, x Exception) Exception {
	stored := x.normalized()
	bucket, ok := s.buckets[seriesID]
	if !ok {
		bucket = make(map[time.Time]Exception)
		s.buckets[seriesID] = bucket
	}
	bucket[stored.OriginalDate] = stored
	return stored
}

// AddBatch bulk-loads exceptions for one series, last write winning on
// duplicate dates.
func (s *ExceptionStore) AddBatch(seriesID string, xs []Exception) {
	for _, x := range xs {
		s.Add(seriesID, x)
	}
}

// Get looks up the exception for the normalized form of date.
func (s *ExceptionStore) Get(seriesID string, date time.Time) (Exception, bool) {
	x, ok := s.buckets[seriesID][calendar.NormalizeDate(date)]
	if !ok {
		return Exception{}, false
	}
	return x.normalized(), true
}

// Remove deletes the exception for the normalized form of date.
// Removing an absent key is a legal no-op reported through the bool.
func (s *ExceptionStore) Remove(seriesID string, date time.Time) (Exception, bool) {
	norm := calendar.NormalizeDate(date)
	x, ok := s.buckets[seriesID][norm]
	if !ok {
		return Exception{}, false
	}
	delete(s.buckets[seriesID], norm)
	return x, true
}

// List returns a date-ordered snapshot of the series' exceptions.
func (s *ExceptionStore) List(seriesID string) []Exception {
	bucket := s.buckets[seriesID]
	out := make([]Exception, 0, len(bucket))
	for _, x := range bucket {
		out = append(out, x.normalized())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OriginalDate.Before(out[j].OriginalDate)
	})
	return out
}

// Clear drops the whole bucket for a series, returning how many
// exceptions were removed.
func (s *ExceptionStore) Clear(seriesID string) int {
	n := len(s.buckets[seriesID])
	delete(s.buckets, seriesID)
	return n
}

// Move transfers every exception dated at or after cutoff (normalized)
// from one series' bucket to another's, returning the moved snapshot.
// Used when a series is split in two.
func (s *ExceptionStore) Move(fromSeries, toSeries string, cutoff time.Time) []Exception {
	norm := calendar.NormalizeDate(cutoff)
	var moved []Exception
	for date, x := range s.buckets[fromSeries] {
		if date.Before(norm) {
			continue
		}
		s.Add(toSeries, x)
		delete(s.buckets[fromSeries], date)
		moved = append(moved, x.normalized())
	}
	sort.Slice(moved, func(i, j int) bool {
		return moved[i].OriginalDate.Before(moved[j].OriginalDate)
	})
	return moved
}

// Len returns the number of exceptions held for a series.
func (s *ExceptionStore) Len(seriesID string) int {
	return len(s.buckets[seriesID])
}
