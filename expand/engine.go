package expand

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/kalendr/librecur/calendar"
	"github.com/kalendr/librecur/recurrence"
)

// Observer is notified after every mutation with the change that just
// happened.
type Observer func(ChangeInfo)

// Config controls engine construction.
type Config struct {
	// MaxOccurrencesPerSeries caps how many occurrences one series may
	// materialize per cache rebuild. Zero means the default.
	MaxOccurrencesPerSeries int

	// Expander generates occurrence instants. Defaults to the rrule-go
	// backed expander.
	Expander recurrence.Expander

	// Logger receives debug/warn logs. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultMaxOccurrencesPerSeries bounds a single series expansion.
const DefaultMaxOccurrencesPerSeries = 1000

// Option is a function that modifies Config.
type Option func(*Config)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithExpander swaps the rule-expansion collaborator.
func WithExpander(expander recurrence.Expander) Option {
	return func(c *Config) { c.Expander = expander }
}

// WithMaxOccurrencesPerSeries sets the per-series expansion cap.
func WithMaxOccurrencesPerSeries(n int) Option {
	return func(c *Config) { c.MaxOccurrencesPerSeries = n }
}

// Engine orchestrates the event store, exception store and occurrence
// cache to answer range queries and execute mutations. It is
// single-threaded by design: every operation runs to completion before
// the next may begin, and a multi-threaded host must serialize access.
// The stores are exclusively owned; nothing hands out live references
// into engine state.
type Engine struct {
	events     *calendar.Store
	exceptions *ExceptionStore
	cache      *Cache
	tracker    *Tracker
	expander   recurrence.Expander
	logger     *slog.Logger
	observers  []Observer
}

// NewEngine creates an engine with empty stores.
func NewEngine(opts ...Option) *Engine {
	cfg := Config{MaxOccurrencesPerSeries: DefaultMaxOccurrencesPerSeries}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Expander == nil {
		cfg.Expander = recurrence.NewRRuleExpander()
	}
	if cfg.MaxOccurrencesPerSeries <= 0 {
		cfg.MaxOccurrencesPerSeries = DefaultMaxOccurrencesPerSeries
	}

	exceptions := NewExceptionStore()
	return &Engine{
		events:     calendar.NewStore(),
		exceptions: exceptions,
		cache:      newCache(cfg.Expander, exceptions, cfg.MaxOccurrencesPerSeries),
		tracker:    NewTracker(),
		expander:   cfg.Expander,
		logger:     cfg.Logger,
	}
}

// Subscribe registers an observer notified after every mutation.
func (e *Engine) Subscribe(fn Observer) {
	e.observers = append(e.observers, fn)
}

// LastChange returns the most recent mutation's metadata.
func (e *Engine) LastChange() mo.Option[ChangeInfo] {
	return e.tracker.Last()
}

// Event returns a copy of the stored event with the given id.
func (e *Engine) Event(id string) (calendar.Event, bool) {
	return e.events.Get(id)
}

// Events returns a snapshot of all stored masters and standalone
// events (not materialized occurrences).
func (e *Engine) Events() []calendar.Event {
	return e.events.List()
}

// Exceptions returns a date-ordered snapshot of a series' exceptions.
func (e *Engine) Exceptions(seriesID string) []Exception {
	return e.exceptions.List(seriesID)
}

// CacheStats reports the occurrence cache contents.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// EventsInRange returns every occurrence and standalone event
// overlapping the half-open window, ordered by start then id.
func (e *Engine) EventsInRange(window calendar.DateRange) ([]calendar.Event, error) {
	if !window.End.After(window.Start) {
		return nil, &calendar.Error{Type: calendar.ErrInvalidInput, Message: "range end must be after range start"}
	}

	var out []calendar.Event
	for _, ev := range e.events.List() {
		if ev.IsMaster() {
			if !seriesMayIntersect(ev, window) {
				continue
			}
			occ, err := e.cache.OccurrencesIn(ev, window)
			if err != nil {
				return nil, err
			}
			out = append(out, occ...)
			continue
		}
		if ev.OverlapsRange(window) {
			out = append(out, ev)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// seriesMayIntersect is a cheap pre-filter: occurrences never precede
// the anchor and never follow an until bound.
func seriesMayIntersect(master calendar.Event, window calendar.DateRange) bool {
	if !master.Start.Before(window.End) {
		return false
	}
	if until, ok := master.Rule.Until.Get(); ok && until.Before(window.Start) {
		return false
	}
	return true
}

// PutEvent creates or replaces a master or standalone event. A
// replaced master's cached series is invalidated wholesale; its
// exceptions are kept and reapply against the new pattern.
func (e *Engine) PutEvent(ev calendar.Event) error {
	if err := e.events.Put(ev); err != nil {
		return err
	}
	e.cache.Invalidate(ev.ID)
	e.logger.Debug("event stored", "id", ev.ID, "master", ev.IsMaster())
	e.record(ChangeInfo{
		Kind:  ChangeEventUpdated,
		IDs:   []string{ev.ID},
		Range: eventChangeRange(ev),
	})
	return nil
}

// PatchEvent applies a partial update to a stored event. The rule
// field uses the keep/set/clear tagged update so a host can clear a
// recurrence rule explicitly.
func (e *Engine) PatchEvent(id string, patch calendar.EventPatch) (calendar.Event, error) {
	current, ok := e.events.Get(id)
	if !ok {
		return calendar.Event{}, &calendar.Error{Type: calendar.ErrNotFound, Message: fmt.Sprintf("event %s not found", id)}
	}
	updated := patch.ApplyTo(current)
	if err := e.events.Put(updated); err != nil {
		return calendar.Event{}, err
	}
	e.cache.Invalidate(id)
	e.logger.Debug("event patched", "id", id)
	info := ChangeInfo{Kind: ChangeEventUpdated, IDs: []string{id}, Range: eventChangeRange(updated)}
	if current.IsMaster() {
		// The old pattern's occurrences are affected too.
		info.Range = mo.None[calendar.DateRange]()
	}
	e.record(info)
	return updated, nil
}

// DeleteEvent removes a master or standalone event. For masters the
// exception bucket is cleared and the cached series discarded.
// Deleting an unknown id is a no-op reported through the bool.
func (e *Engine) DeleteEvent(id string) (calendar.Event, bool) {
	ev, ok := e.events.Remove(id)
	if !ok {
		return calendar.Event{}, false
	}
	e.exceptions.Clear(id)
	e.cache.Invalidate(id)
	e.logger.Debug("event removed", "id", id, "master", ev.IsMaster())
	e.record(ChangeInfo{
		Kind:  ChangeEventRemoved,
		IDs:   []string{id},
		Range: eventChangeRange(ev),
	})
	return ev, true
}

// AddException stores a per-occurrence override for the series and
// patches the cached entry in place. An exception for a series whose
// master is not loaded yet is stored silently and applies once the
// master arrives.
func (e *Engine) AddException(seriesID string, x Exception) (Exception, error) {
	if err := x.Validate(); err != nil {
		return Exception{}, err
	}
	stored := e.exceptions.Add(seriesID, x)
	e.patchOrInvalidate(seriesID, stored, (*Cache).PatchAdd)
	e.logger.Debug("exception added", "series", seriesID, "type", string(stored.Type), "date", stored.OriginalDate)
	e.record(ChangeInfo{
		Kind:  ChangeExceptionAdded,
		IDs:   []string{seriesID},
		Range: mo.Some(exceptionChangeRange(stored)),
	})
	return stored, nil
}

// RemoveException deletes the override for the normalized date. A
// missing key is a legal no-op: no state changes, no change is
// recorded, and the bool reports the miss.
func (e *Engine) RemoveException(seriesID string, date time.Time) (Exception, bool) {
	removed, ok := e.exceptions.Remove(seriesID, date)
	if !ok {
		return Exception{}, false
	}
	e.patchOrInvalidate(seriesID, removed, (*Cache).PatchRemove)
	e.logger.Debug("exception removed", "series", seriesID, "date", removed.OriginalDate)
	e.record(ChangeInfo{
		Kind:  ChangeExceptionRemoved,
		IDs:   []string{seriesID},
		Range: mo.Some(exceptionChangeRange(removed)),
	})
	return removed, true
}

// AddExceptionsBatch bulk-loads exceptions for one series. The whole
// batch is validated before anything is stored, the cached series is
// invalidated rather than patched, and the recorded change carries no
// range: observers should rebuild.
func (e *Engine) AddExceptionsBatch(seriesID string, xs []Exception) error {
	for i, x := range xs {
		if err := x.Validate(); err != nil {
			return fmt.Errorf("exception %d: %w", i, err)
		}
	}
	e.exceptions.AddBatch(seriesID, xs)
	e.cache.Invalidate(seriesID)
	e.logger.Debug("exceptions loaded", "series", seriesID, "count", len(xs))
	e.record(ChangeInfo{
		Kind:  ChangeExceptionsLoaded,
		IDs:   []string{seriesID},
		Range: mo.None[calendar.DateRange](),
	})
	return nil
}

// ModifyOccurrence replaces one occurrence with the given event. It is
// sugar for adding a modified exception through the standard path.
func (e *Engine) ModifyOccurrence(seriesID string, date time.Time, replacement calendar.Event) (Exception, error) {
	return e.AddException(seriesID, NewModifiedException(date, replacement))
}

// SplitSeries cuts a series in two at the given date: the original
// master stops the day before, a new master carries the same pattern
// and duration from the split date on, and every exception dated at or
// after the split moves to the new series. Returns the new series id.
func (e *Engine) SplitSeries(seriesID string, from time.Time) (string, error) {
	master, ok := e.events.Get(seriesID)
	if !ok {
		return "", &calendar.Error{Type: calendar.ErrNotFound, Message: fmt.Sprintf("event %s not found", seriesID)}
	}
	if !master.IsMaster() {
		return "", &calendar.Error{Type: calendar.ErrInvalidOperation, Message: fmt.Sprintf("event %s has no recurrence rule", seriesID)}
	}
	cut := calendar.NormalizeDate(from)

	oldRule := *master.Rule
	newRule := oldRule
	if count, ok := oldRule.Count.Get(); ok {
		consumed, err := e.countOccurrencesBefore(master, cut)
		if err != nil {
			return "", err
		}
		remaining := count - consumed
		if remaining < 0 {
			remaining = 0
		}
		newRule.Count = mo.Some(remaining)
	}

	// Clamp the original pattern to end the day before the split; a
	// count bound converts to an until bound.
	oldUntil := cut.Add(-time.Second)
	if existing, ok := oldRule.Until.Get(); ok && existing.Before(oldUntil) {
		oldUntil = existing
	}
	oldRule.Count = mo.None[int]()
	oldRule.Until = mo.Some(oldUntil)

	newMaster := master.Clone()
	newMaster.ID = uuid.NewString()
	newMaster.Rule = &newRule
	newStart, err := e.tailAnchor(master, newRule, cut)
	if err != nil {
		return "", err
	}
	newMaster.Start = newStart
	newMaster.End = newStart.Add(master.Duration())

	updated := master.Clone()
	updated.Rule = &oldRule
	if err := e.events.Put(updated); err != nil {
		return "", err
	}
	if err := e.events.Put(newMaster); err != nil {
		return "", err
	}

	moved := e.exceptions.Move(seriesID, newMaster.ID, cut)
	e.cache.Invalidate(seriesID)
	e.cache.Invalidate(newMaster.ID)
	e.logger.Debug("series split", "series", seriesID, "new_series", newMaster.ID,
		"from", cut, "moved_exceptions", len(moved))
	e.record(ChangeInfo{
		Kind:  ChangeSeriesSplit,
		IDs:   []string{seriesID, newMaster.ID},
		Range: mo.None[calendar.DateRange](),
	})
	return newMaster.ID, nil
}

// countOccurrencesBefore counts the instants the series generates
// strictly before cut. Only called for count-bounded rules, so the
// expansion is finite.
func (e *Engine) countOccurrencesBefore(master calendar.Event, cut time.Time) (int, error) {
	if !cut.After(master.Start) {
		return 0, nil
	}
	instants, err := e.expander.ExpandInWindow(master.Start, *master.Rule, master.Start, cut)
	if err != nil {
		return 0, fmt.Errorf("expand series %s: %w", master.ID, err)
	}
	return len(instants), nil
}

// tailAnchor finds the first instant the split-off series produces at
// or after cut, so the new master's anchor keeps the original phase
// (interval alignment and time-of-day). Falls back to cut plus the
// master's time-of-day when the probe window holds no occurrence.
func (e *Engine) tailAnchor(master calendar.Event, rule recurrence.Rule, cut time.Time) (time.Time, error) {
	probeEnd := probeHorizon(rule, cut)
	instants, err := e.expander.ExpandInWindow(master.Start, *master.Rule, cut, probeEnd)
	if err != nil {
		return time.Time{}, fmt.Errorf("expand series %s: %w", master.ID, err)
	}
	if len(instants) > 0 {
		return instants[0], nil
	}
	start := master.Start.UTC()
	return cut.Add(time.Duration(start.Hour())*time.Hour +
		time.Duration(start.Minute())*time.Minute +
		time.Duration(start.Second())*time.Second), nil
}

// probeHorizon is a window generous enough to contain at least one
// occurrence of an ongoing rule past cut.
func probeHorizon(rule recurrence.Rule, cut time.Time) time.Time {
	n := rule.Interval + 1
	switch rule.Frequency {
	case recurrence.Weekly:
		return cut.AddDate(0, 0, 7*n+7)
	case recurrence.Monthly:
		return cut.AddDate(0, n+1, 7)
	case recurrence.Yearly:
		return cut.AddDate(n+1, 0, 7)
	default:
		return cut.AddDate(0, 0, 7*n+7)
	}
}

// patchOrInvalidate applies a cache patch for the series' master; if
// the patch fails, or the master is unknown, the cached entry cannot
// be trusted and is discarded instead.
func (e *Engine) patchOrInvalidate(seriesID string, x Exception, patch func(*Cache, calendar.Event, Exception) error) {
	master, ok := e.events.Get(seriesID)
	if !ok || !master.IsMaster() {
		e.cache.Invalidate(seriesID)
		return
	}
	if err := patch(e.cache, master, x); err != nil {
		e.logger.Warn("cache patch failed, invalidating series", "series", seriesID, "error", err)
		e.cache.Invalidate(seriesID)
	}
}

// record overwrites the tracked change and then notifies observers.
func (e *Engine) record(info ChangeInfo) {
	e.tracker.Record(info)
	for _, fn := range e.observers {
		fn(info.clone())
	}
}

// eventChangeRange is the tight day-granular span of a standalone
// event; masters get no range since their whole series is affected.
func eventChangeRange(ev calendar.Event) mo.Option[calendar.DateRange] {
	if ev.IsMaster() {
		return mo.None[calendar.DateRange]()
	}
	return mo.Some(calendar.DateRange{
		Start: calendar.NormalizeDate(ev.Start),
		End:   calendar.NormalizeDate(ev.End).AddDate(0, 0, 1),
	})
}

// exceptionChangeRange covers the exception's original date and, for
// reschedules, the new date as well. Never the whole series span.
func exceptionChangeRange(x Exception) calendar.DateRange {
	start := x.OriginalDate
	end := x.OriginalDate.AddDate(0, 0, 1)
	if newDate, ok := x.NewDate.Get(); ok {
		norm := calendar.NormalizeDate(newDate)
		if norm.Before(start) {
			start = norm
		}
		if dayEnd := norm.AddDate(0, 0, 1); dayEnd.After(end) {
			end = dayEnd
		}
	}
	return calendar.DateRange{Start: start, End: end}
}
