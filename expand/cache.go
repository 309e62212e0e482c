package expand

import (
	"fmt"
	"sort"
	"time"

	"github.com/kalendr/librecur/calendar"
	"github.com/kalendr/librecur/recurrence"
)

// cacheEntry is the materialized, exception-applied occurrence list of
// one series, authoritative for exactly one window.
type cacheEntry struct {
	window      calendar.DateRange // query window the entry answers
	span        calendar.DateRange // raw-instant bound the entry materialized
	occurrences []calendar.Event   // ascending by start
	truncated   bool
}

// Cache holds at most one entry per series. Queries inside a cached
// window are served from the entry; single-exception mutations patch
// the entry in place at a cost bounded by that one series' cached
// occurrence count; everything riskier invalidates wholesale. An
// entry must never contradict the exception store inside its own
// window; when the two could disagree, the correction is full
// invalidation, never partial trust.
type Cache struct {
	expander     recurrence.Expander
	exceptions   *ExceptionStore
	entries      map[string]*cacheEntry
	maxPerSeries int
}

// CacheStats reports what the cache currently holds.
type CacheStats struct {
	Series      int
	Occurrences int
}

func newCache(expander recurrence.Expander, exceptions *ExceptionStore, maxPerSeries int) *Cache {
	return &Cache{
		expander:     expander,
		exceptions:   exceptions,
		entries:      make(map[string]*cacheEntry),
		maxPerSeries: maxPerSeries,
	}
}

// OccurrencesIn returns the master's exception-applied occurrences
// overlapping the window. A cache entry covering the window serves the
// query without recomputation; otherwise the entry is rebuilt for
// exactly this window.
func (c *Cache) OccurrencesIn(master calendar.Event, window calendar.DateRange) ([]calendar.Event, error) {
	entry, ok := c.entries[master.ID]
	if !ok || !entry.window.Covers(window) {
		rebuilt, err := c.rebuild(master, window)
		if err != nil {
			return nil, err
		}
		entry = rebuilt
		c.entries[master.ID] = entry
	}

	out := make([]calendar.Event, 0, len(entry.occurrences))
	for _, occ := range entry.occurrences {
		if occ.OverlapsRange(window) {
			out = append(out, occ.Clone())
		}
	}
	return out, nil
}

func (c *Cache) rebuild(master calendar.Event, window calendar.DateRange) (*cacheEntry, error) {
	span := materializationSpan(master, window)
	raw, err := c.expander.ExpandInWindow(master.Start, *master.Rule, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("expand series %s: %w", master.ID, err)
	}

	entry := &cacheEntry{window: window, span: span}
	if c.maxPerSeries > 0 && len(raw) > c.maxPerSeries {
		raw = raw[:c.maxPerSeries]
		entry.truncated = true
	}

	for _, t := range raw {
		norm := calendar.NormalizeDate(t)
		x, ok := c.exceptions.Get(master.ID, norm)
		if !ok {
			entry.occurrences = append(entry.occurrences, materializeDefault(master, t))
			continue
		}
		if occ, keep := applyException(master, t, x); keep {
			entry.occurrences = append(entry.occurrences, occ)
		}
	}

	// Reschedules and replacements can move occurrences out of raw
	// order.
	sortOccurrences(entry.occurrences)
	return entry, nil
}

// PatchAdd updates the series' cache entry for a newly stored
// exception. Entries for other series are untouched; a missing entry
// is left missing (the next query rebuilds it).
func (c *Cache) PatchAdd(master calendar.Event, x Exception) error {
	entry, ok := c.entries[master.ID]
	if !ok {
		return nil
	}
	norm := calendar.NormalizeDate(x.OriginalDate)
	removeOccurrence(entry, norm)

	// The exception may target a date whose default occurrence is not
	// currently materialized (it was overwritten while excepted), so
	// the raw instant is re-derived from the rule rather than trusted
	// from the entry.
	raw, ok, err := c.rawInstantFor(master, norm)
	if err != nil {
		return err
	}
	if !ok || !entry.span.Contains(raw) {
		return nil
	}
	if occ, keep := applyException(master, raw, x); keep {
		insertOccurrence(entry, occ)
	}
	return nil
}

// PatchRemove is the inverse of PatchAdd: the exception is gone, so
// the single default occurrence is regenerated from the master and
// rule and reinserted at its sorted position.
func (c *Cache) PatchRemove(master calendar.Event, x Exception) error {
	entry, ok := c.entries[master.ID]
	if !ok {
		return nil
	}
	norm := calendar.NormalizeDate(x.OriginalDate)
	removeOccurrence(entry, norm)

	raw, ok, err := c.rawInstantFor(master, norm)
	if err != nil {
		return err
	}
	if !ok || !entry.span.Contains(raw) {
		return nil
	}
	insertOccurrence(entry, materializeDefault(master, raw))
	return nil
}

// Invalidate discards the series' cache entry entirely.
func (c *Cache) Invalidate(seriesID string) {
	delete(c.entries, seriesID)
}

// InvalidateAll discards every entry.
func (c *Cache) InvalidateAll() {
	c.entries = make(map[string]*cacheEntry)
}

// Stats reports how many series and occurrences are cached.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{Series: len(c.entries)}
	for _, entry := range c.entries {
		stats.Occurrences += len(entry.occurrences)
	}
	return stats
}

// materializationSpan widens the query window backwards by the
// master's duration. Reads filter by overlap, so an occurrence that
// starts before the window but runs into it must still be
// materialized; bounding raw starts by the window alone would make
// the answer depend on which window was cached first.
func materializationSpan(master calendar.Event, window calendar.DateRange) calendar.DateRange {
	lookback := master.Duration()
	if master.AllDay && lookback < 24*time.Hour {
		lookback = 24 * time.Hour
	}
	return calendar.DateRange{Start: window.Start.Add(-lookback), End: window.End}
}

// rawInstantFor asks the expander for the rule instant on the given
// normalized date, expanding just that one day.
func (c *Cache) rawInstantFor(master calendar.Event, norm time.Time) (time.Time, bool, error) {
	day, err := c.expander.ExpandInWindow(master.Start, *master.Rule, norm, norm.AddDate(0, 0, 1))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expand series %s at %s: %w", master.ID, norm.Format("2006-01-02"), err)
	}
	for _, t := range day {
		if calendar.NormalizeDate(t).Equal(norm) {
			return t, true, nil
		}
	}
	return time.Time{}, false, nil
}

// applyException materializes the occurrence for raw instant t under
// the exception, or reports that the occurrence is omitted.
func applyException(master calendar.Event, t time.Time, x Exception) (calendar.Event, bool) {
	norm := calendar.NormalizeDate(x.OriginalDate)
	switch x.Type {
	case ExceptionDeleted:
		return calendar.Event{}, false
	case ExceptionRescheduled:
		newStart := x.NewDate.MustGet()
		occ := materializeDefault(master, t)
		occ.Start = newStart
		occ.End = newStart.Add(master.Duration())
		return occ, true
	case ExceptionModified:
		occ := x.Replacement.MustGet().Clone()
		occ.Rule = nil
		occ.OccurrenceID = &norm
		return occ, true
	default:
		return calendar.Event{}, false
	}
}

// materializeDefault builds the exception-free occurrence for raw
// instant t: every master field is inherited except the timing, the id
// is a deterministic composite of master id and date, and the
// occurrence id preserves the original date.
func materializeDefault(master calendar.Event, t time.Time) calendar.Event {
	norm := calendar.NormalizeDate(t)
	occ := master.Clone()
	occ.ID = occurrenceEventID(master.ID, norm)
	occ.Rule = nil
	occ.OccurrenceID = &norm
	if master.AllDay {
		// All-day occurrences span [date 00:00, next day 00:00).
		occ.Start = norm
		occ.End = norm.AddDate(0, 0, 1)
	} else {
		occ.Start = t
		occ.End = t.Add(master.Duration())
	}
	return occ
}

func occurrenceEventID(masterID string, norm time.Time) string {
	return fmt.Sprintf("%s:%s", masterID, norm.Format("20060102"))
}

func removeOccurrence(entry *cacheEntry, norm time.Time) {
	for i, occ := range entry.occurrences {
		if occ.OccurrenceID != nil && occ.OccurrenceID.Equal(norm) {
			entry.occurrences = append(entry.occurrences[:i], entry.occurrences[i+1:]...)
			return
		}
	}
}

func insertOccurrence(entry *cacheEntry, occ calendar.Event) {
	i := sort.Search(len(entry.occurrences), func(i int) bool {
		other := entry.occurrences[i]
		if !other.Start.Equal(occ.Start) {
			return other.Start.After(occ.Start)
		}
		return other.ID >= occ.ID
	})
	entry.occurrences = append(entry.occurrences, calendar.Event{})
	copy(entry.occurrences[i+1:], entry.occurrences[i:])
	entry.occurrences[i] = occ
}

func sortOccurrences(occurrences []calendar.Event) {
	sort.Slice(occurrences, func(i, j int) bool {
		if !occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].Start.Before(occurrences[j].Start)
		}
		return occurrences[i].ID < occurrences[j].ID
	})
}
