package ical

import (
	"bytes"
	"strings"
	"testing"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalendr/librecur/calendar"
	"github.com/kalendr/librecur/expand"
	"github.com/kalendr/librecur/recurrence"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:standup
SUMMARY:standup
DTSTART:20240101T090000Z
DTEND:20240101T100000Z
RRULE:FREQ=WEEKLY;BYDAY=TU,TH
EXDATE:20240104T090000Z
END:VEVENT
BEGIN:VEVENT
UID:standup
RECURRENCE-ID:20240109T090000Z
SUMMARY:planning
DTSTART:20240109T130000Z
DTEND:20240109T143000Z
END:VEVENT
BEGIN:VEVENT
UID:dentist
SUMMARY:dentist
DTSTART:20240103T080000Z
DTEND:20240103T090000Z
END:VEVENT
END:VCALENDAR
`

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestImportFrom(t *testing.T) {
	engine := expand.NewEngine()
	res, err := ImportFrom(engine, strings.NewReader(crlf(sampleICS)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 2, res.Exceptions)

	master, ok := engine.Event("standup")
	require.True(t, ok)
	require.True(t, master.IsMaster())
	assert.Equal(t, recurrence.Weekly, master.Rule.Frequency)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), master.Start)

	got, err := engine.EventsInRange(calendar.DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 15)})
	require.NoError(t, err)
	require.Len(t, got, 4)

	var titles []string
	for _, ev := range got {
		titles = append(titles, ev.Title)
	}
	// 01-02 standup, 01-03 dentist, 01-09 overridden to planning,
	// 01-11 standup; 01-04 excluded by EXDATE.
	assert.Equal(t, []string{"standup", "dentist", "planning", "standup"}, titles)
}

func TestImport_OverrideKeepsIdentity(t *testing.T) {
	engine := expand.NewEngine()
	_, err := ImportFrom(engine, strings.NewReader(crlf(sampleICS)))
	require.NoError(t, err)

	got, err := engine.EventsInRange(calendar.DateRange{Start: date(2024, 1, 9), End: date(2024, 1, 10)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].OccurrenceID)
	assert.Equal(t, date(2024, 1, 9), *got[0].OccurrenceID)
	assert.Equal(t, time.Date(2024, 1, 9, 13, 0, 0, 0, time.UTC), got[0].Start)
}

func TestImport_DateOnlyExdate(t *testing.T) {
	ics := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:chores
SUMMARY:chores
DTSTART:20240101T090000Z
DTEND:20240101T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE;VALUE=DATE:20240102,20240104
END:VEVENT
END:VCALENDAR
`
	engine := expand.NewEngine()
	res, err := ImportFrom(engine, strings.NewReader(crlf(ics)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Exceptions)

	got, err := engine.EventsInRange(calendar.DateRange{Start: date(2024, 1, 1), End: date(2024, 2, 1)})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestImport_SubDailyRuleRejected(t *testing.T) {
	ics := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:ticker
DTSTART:20240101T090000Z
RRULE:FREQ=HOURLY
END:VEVENT
END:VCALENDAR
`
	engine := expand.NewEngine()
	_, err := ImportFrom(engine, strings.NewReader(crlf(ics)))
	var unsupported *recurrence.UnsupportedFrequencyError
	require.Error(t, err)
	assert.ErrorAs(t, err, &unsupported)
}

func TestExport(t *testing.T) {
	engine := expand.NewEngine()
	rule, err := recurrence.New(recurrence.Weekly, 1,
		recurrence.WithByWeekday(time.Tuesday, time.Thursday))
	require.NoError(t, err)
	require.NoError(t, engine.PutEvent(calendar.Event{
		ID:    "standup",
		Title: "standup",
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Rule:  &rule,
	}))
	_, err = engine.AddException("standup", expand.NewDeletedException(date(2024, 1, 4)))
	require.NoError(t, err)
	_, err = engine.AddException("standup",
		expand.NewRescheduledException(date(2024, 1, 9), time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	cal := Export(engine)

	var masters, overrides int
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		if comp.Props.Get(propRecurrenceID) != nil {
			overrides++
			continue
		}
		masters++
		rruleProp := comp.Props.Get(goical.PropRecurrenceRule)
		require.NotNil(t, rruleProp)
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU,TH", rruleProp.Value)
		exdateProp := comp.Props.Get(goical.PropExceptionDates)
		require.NotNil(t, exdateProp)
		assert.Equal(t, "20240104T000000Z", exdateProp.Value)
	}
	assert.Equal(t, 1, masters)
	assert.Equal(t, 1, overrides)
}

func TestExport_AllDayUsesDateValues(t *testing.T) {
	engine := expand.NewEngine()
	rule, err := recurrence.New(recurrence.Daily, 1, recurrence.WithCount(3))
	require.NoError(t, err)
	require.NoError(t, engine.PutEvent(calendar.Event{
		ID:     "retreat",
		Title:  "retreat",
		Start:  date(2024, 1, 10),
		End:    date(2024, 1, 11),
		AllDay: true,
		Rule:   &rule,
	}))
	_, err = engine.AddException("retreat", expand.NewDeletedException(date(2024, 1, 11)))
	require.NoError(t, err)

	cal := Export(engine)

	var comp *goical.Component
	for _, child := range cal.Children {
		if child.Name == goical.CompEvent {
			comp = child
		}
	}
	require.NotNil(t, comp)

	dtstart := comp.Props.Get(goical.PropDateTimeStart)
	require.NotNil(t, dtstart)
	assert.Equal(t, "20240110", dtstart.Value)
	assert.Equal(t, "DATE", dtstart.Params.Get("VALUE"))

	exdate := comp.Props.Get(goical.PropExceptionDates)
	require.NotNil(t, exdate)
	assert.Equal(t, "20240111", exdate.Value)
	assert.Equal(t, "DATE", exdate.Params.Get("VALUE"))
}

func TestExportImportRoundTrip(t *testing.T) {
	engine := expand.NewEngine()
	rule, err := recurrence.New(recurrence.Daily, 1, recurrence.WithCount(5))
	require.NoError(t, err)
	require.NoError(t, engine.PutEvent(calendar.Event{
		ID:    "sprint",
		Title: "sprint",
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Rule:  &rule,
	}))
	_, err = engine.AddException("sprint", expand.NewDeletedException(date(2024, 1, 3)))
	require.NoError(t, err)

	allDayRule, err := recurrence.New(recurrence.Daily, 1, recurrence.WithCount(3))
	require.NoError(t, err)
	require.NoError(t, engine.PutEvent(calendar.Event{
		ID:     "retreat",
		Title:  "retreat",
		Start:  date(2024, 1, 10),
		End:    date(2024, 1, 11),
		AllDay: true,
		Rule:   &allDayRule,
	}))
	_, err = engine.AddException("retreat", expand.NewDeletedException(date(2024, 1, 11)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportTo(engine, &buf))

	restored := expand.NewEngine()
	_, err = ImportFrom(restored, &buf)
	require.NoError(t, err)

	window := calendar.DateRange{Start: date(2024, 1, 1), End: date(2024, 2, 1)}
	want, err := engine.EventsInRange(window)
	require.NoError(t, err)
	got, err := restored.EventsInRange(window)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Start, got[i].Start)
		assert.Equal(t, want[i].End, got[i].End)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.Equal(t, want[i].AllDay, got[i].AllDay)
	}
}
