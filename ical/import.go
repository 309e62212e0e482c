// Package ical bridges iCalendar objects to engine state: whole
// calendars are bulk-loaded into an expansion engine and exported back
// out. Recurrence grammar handling stays delegated to the recurrence
// package; this package only maps components and properties.
package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/kalendr/librecur/calendar"
	"github.com/kalendr/librecur/expand"
	"github.com/kalendr/librecur/recurrence"
)

// propRecurrenceID marks a component overriding one occurrence.
const propRecurrenceID = "RECURRENCE-ID"

const (
	dateTimeLayout = "20060102T150405Z"
	dateLayout     = "20060102"
)

// ImportResult reports what a bulk load produced.
type ImportResult struct {
	Events     int
	Exceptions int
}

// ImportFrom decodes an iCalendar stream and loads it into the engine.
func ImportFrom(e *expand.Engine, r io.Reader) (ImportResult, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return ImportResult{}, fmt.Errorf("decode calendar: %w", err)
	}
	return Import(e, cal)
}

// Import loads a calendar's VEVENTs into the engine: plain components
// become masters or standalone events, EXDATE dates become deleted
// exceptions, and RECURRENCE-ID components become modified exceptions
// on their series. Exceptions go through the engine's batch path, so
// one change per series is recorded.
func Import(e *expand.Engine, cal *ical.Calendar) (ImportResult, error) {
	var res ImportResult

	var bases []*ical.Component
	overrides := make(map[string][]*ical.Component)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		if comp.Props.Get(propRecurrenceID) != nil {
			uid := textProp(comp, ical.PropUID)
			overrides[uid] = append(overrides[uid], comp)
			continue
		}
		bases = append(bases, comp)
	}

	for _, comp := range bases {
		ev, exdates, err := eventFromComponent(comp)
		if err != nil {
			return res, err
		}
		if err := e.PutEvent(ev); err != nil {
			return res, err
		}
		res.Events++

		var batch []expand.Exception
		for _, d := range exdates {
			batch = append(batch, expand.NewDeletedException(d))
		}
		for _, oc := range overrides[ev.ID] {
			x, err := exceptionFromOverride(ev, oc)
			if err != nil {
				return res, err
			}
			batch = append(batch, x)
		}
		if len(batch) > 0 {
			if err := e.AddExceptionsBatch(ev.ID, batch); err != nil {
				return res, err
			}
			res.Exceptions += len(batch)
		}
	}
	return res, nil
}

// eventFromComponent maps a VEVENT onto the event model, returning any
// EXDATE dates alongside.
func eventFromComponent(comp *ical.Component) (calendar.Event, []time.Time, error) {
	ev := calendar.Event{
		ID:          textProp(comp, ical.PropUID),
		Title:       textProp(comp, ical.PropSummary),
		Description: textProp(comp, ical.PropDescription),
		Location:    textProp(comp, ical.PropLocation),
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return calendar.Event{}, nil, fmt.Errorf("event %s: read DTSTART: %w", ev.ID, err)
	}
	if start.IsZero() {
		return calendar.Event{}, nil, &calendar.Error{
			Type:    calendar.ErrInvalidInput,
			Message: fmt.Sprintf("event %s has no DTSTART", ev.ID),
		}
	}
	ev.Start = start
	ev.AllDay = isDateOnlyProp(comp.Props.Get(ical.PropDateTimeStart))

	if end, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil && !end.IsZero() {
		ev.End = end
	} else if ev.AllDay {
		ev.End = start.AddDate(0, 0, 1)
	} else {
		ev.End = start
	}

	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil && rruleProp.Value != "" {
		rule, err := recurrence.Parse(rruleProp.Value)
		if err != nil {
			return calendar.Event{}, nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		ev.Rule = &rule
	}

	var exdates []time.Time
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		dateOnly := isDateOnlyProp(&prop)
		for _, token := range strings.Split(prop.Value, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			d, err := parseDate(token, dateOnly)
			if err != nil {
				return calendar.Event{}, nil, fmt.Errorf("event %s: parse EXDATE %q: %w", ev.ID, token, err)
			}
			exdates = append(exdates, d)
		}
	}
	return ev, exdates, nil
}

// exceptionFromOverride turns a RECURRENCE-ID component into a
// modified exception on its master series.
func exceptionFromOverride(master calendar.Event, comp *ical.Component) (expand.Exception, error) {
	ridProp := comp.Props.Get(propRecurrenceID)
	rid, err := parseDate(ridProp.Value, isDateOnlyProp(ridProp))
	if err != nil {
		return expand.Exception{}, fmt.Errorf("series %s: parse RECURRENCE-ID %q: %w", master.ID, ridProp.Value, err)
	}

	replacement, _, err := eventFromComponent(comp)
	if err != nil {
		return expand.Exception{}, err
	}
	// The override shares the master's UID; the replacement needs its
	// own identity within the series.
	norm := calendar.NormalizeDate(rid)
	replacement.ID = fmt.Sprintf("%s:%s", master.ID, norm.Format(dateLayout))
	replacement.Rule = nil
	return expand.NewModifiedException(rid, replacement), nil
}

func textProp(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

// isDateOnlyProp reports whether the property carries VALUE=DATE.
func isDateOnlyProp(prop *ical.Prop) bool {
	if prop == nil || prop.Params == nil {
		return false
	}
	values := prop.Params["VALUE"]
	return len(values) > 0 && strings.EqualFold(values[0], "DATE")
}

// parseDate reads an iCalendar date or date-time token. Date-only
// values land on midnight UTC, matching the engine's normalization.
func parseDate(token string, dateOnly bool) (time.Time, error) {
	if dateOnly {
		return time.Parse(dateLayout, token)
	}
	t, err := time.Parse(dateTimeLayout, token)
	if err != nil {
		// Fall back to date-only form.
		return time.Parse(dateLayout, token)
	}
	return t, nil
}
