package expand

import (
	"github.com/samber/mo"

	"github.com/kalendr/librecur/calendar"
)

// ChangeKind classifies the most recent mutation.
type ChangeKind string

const (
	ChangeEventUpdated     ChangeKind = "event_updated"
	ChangeEventRemoved     ChangeKind = "event_removed"
	ChangeExceptionAdded   ChangeKind = "exception_added"
	ChangeExceptionRemoved ChangeKind = "exception_removed"
	ChangeExceptionsLoaded ChangeKind = "exceptions_loaded"
	ChangeSeriesSplit      ChangeKind = "series_split"
)

// ChangeInfo describes the most recent mutation so observers can
// invalidate narrowly. An absent Range means the change has no tight
// bound and everything derived from this engine should be rebuilt.
type ChangeInfo struct {
	Kind  ChangeKind
	IDs   []string
	Range mo.Option[calendar.DateRange]
}

func (info ChangeInfo) clone() ChangeInfo {
	out := info
	out.IDs = append([]string(nil), info.IDs...)
	return out
}

// Tracker holds the single most recent ChangeInfo. Every mutation
// overwrites it immediately before observers are notified; changes
// are not queued.
type Tracker struct {
	last mo.Option[ChangeInfo]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record overwrites the tracked change.
func (t *Tracker) Record(info ChangeInfo) {
	t.last = mo.Some(info.clone())
}

// Last returns the most recent change, if any mutation happened yet.
func (t *Tracker) Last() mo.Option[ChangeInfo] {
	if info, ok := t.last.Get(); ok {
		return mo.Some(info.clone())
	}
	return mo.None[ChangeInfo]()
}
