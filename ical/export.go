package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/kalendr/librecur/calendar"
	"github.com/kalendr/librecur/expand"
)

// Export renders current engine state back into an iCalendar object:
// masters and standalone events become VEVENTs, deleted exceptions
// become EXDATE entries, and rescheduled/modified exceptions become
// RECURRENCE-ID components.
func Export(e *expand.Engine) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//kalendr//librecur//EN")

	for _, ev := range e.Events() {
		comp := componentFromEvent(ev)

		var exdates []string
		for _, x := range e.Exceptions(ev.ID) {
			switch x.Type {
			case expand.ExceptionDeleted:
				exdates = append(exdates, formatDate(x.OriginalDate, ev.AllDay))
			case expand.ExceptionRescheduled:
				cal.Children = append(cal.Children, rescheduleComponent(ev, x))
			case expand.ExceptionModified:
				replacement := x.Replacement.MustGet()
				child := componentFromEvent(replacement)
				child.Props.SetText(ical.PropUID, ev.ID)
				setDateProp(child, propRecurrenceID, x.OriginalDate, ev.AllDay)
				cal.Children = append(cal.Children, child)
			}
		}
		if len(exdates) > 0 {
			prop := ical.NewProp(ical.PropExceptionDates)
			prop.Value = strings.Join(exdates, ",")
			if ev.AllDay {
				prop.Params["VALUE"] = []string{"DATE"}
			}
			comp.Props.Set(prop)
		}
		cal.Children = append(cal.Children, comp)
	}
	return cal
}

// ExportTo encodes the engine state as an iCalendar stream.
func ExportTo(e *expand.Engine, w io.Writer) error {
	if err := ical.NewEncoder(w).Encode(Export(e)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func componentFromEvent(ev calendar.Event) *ical.Component {
	comp := &ical.Component{
		Name:  ical.CompEvent,
		Props: make(ical.Props),
	}
	comp.Props.SetText(ical.PropUID, ev.ID)
	if ev.Title != "" {
		comp.Props.SetText(ical.PropSummary, ev.Title)
	}
	if ev.Description != "" {
		comp.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		comp.Props.SetText(ical.PropLocation, ev.Location)
	}
	setDateProp(comp, ical.PropDateTimeStart, ev.Start, ev.AllDay)
	setDateProp(comp, ical.PropDateTimeEnd, ev.End, ev.AllDay)
	if ev.Rule != nil {
		comp.Props.Set(&ical.Prop{
			Name:  ical.PropRecurrenceRule,
			Value: ev.Rule.String(),
		})
	}
	return comp
}

// rescheduleComponent renders a rescheduled exception as an override
// component inheriting the master's descriptive fields.
func rescheduleComponent(master calendar.Event, x expand.Exception) *ical.Component {
	moved := master.Clone()
	moved.Rule = nil
	newStart := x.NewDate.MustGet()
	moved.Start = newStart
	moved.End = newStart.Add(master.Duration())
	comp := componentFromEvent(moved)
	comp.Props.SetText(ical.PropUID, master.ID)
	setDateProp(comp, propRecurrenceID, x.OriginalDate, master.AllDay)
	return comp
}

func setDateProp(comp *ical.Component, name string, t time.Time, dateOnly bool) {
	prop := ical.NewProp(name)
	if dateOnly {
		prop.Params["VALUE"] = []string{"DATE"}
		prop.Value = t.UTC().Format(dateLayout)
	} else {
		prop.Value = t.UTC().Format(dateTimeLayout)
	}
	comp.Props.Set(prop)
}

func formatDate(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(dateTimeLayout)
}
