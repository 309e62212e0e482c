package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// untilLayout is the RFC 5545 UTC date-time form used for UNTIL.
const untilLayout = "20060102T150405Z"

// Parse reads a textual RRULE value (without the "RRULE:" prefix),
// e.g. "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH". Grammar handling is
// delegated to rrule-go; this function only maps the result into the
// supported rule subset. Sub-daily frequencies fail with
// *UnsupportedFrequencyError.
func Parse(text string) (Rule, error) {
	opt, err := rrule.StrToROption(text)
	if err != nil {
		return Rule{}, &InvalidRuleError{Reason: fmt.Sprintf("parse %q: %v", text, err)}
	}

	var freq Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = Daily
	case rrule.WEEKLY:
		freq = Weekly
	case rrule.MONTHLY:
		freq = Monthly
	case rrule.YEARLY:
		freq = Yearly
	default:
		return Rule{}, &UnsupportedFrequencyError{Frequency: freqToken(opt.Freq)}
	}

	interval := opt.Interval
	if interval == 0 {
		interval = 1
	}

	var opts []RuleOption
	if opt.Count > 0 {
		opts = append(opts, WithCount(opt.Count))
	}
	if !opt.Until.IsZero() {
		opts = append(opts, WithUntil(opt.Until))
	}
	if len(opt.Byweekday) > 0 {
		days := make([]time.Weekday, 0, len(opt.Byweekday))
		for _, w := range opt.Byweekday {
			days = append(days, timeWeekday(w))
		}
		opts = append(opts, WithByWeekday(days...))
	}
	if len(opt.Bymonthday) > 0 {
		opts = append(opts, WithByMonthDay(opt.Bymonthday...))
	}
	if len(opt.Bymonth) > 0 {
		months := make([]time.Month, 0, len(opt.Bymonth))
		for _, m := range opt.Bymonth {
			months = append(months, time.Month(m))
		}
		opts = append(opts, WithByMonth(months...))
	}
	if len(opt.Bysetpos) > 0 {
		opts = append(opts, WithBySetPos(opt.Bysetpos...))
	}
	opts = append(opts, WithWeekStart(timeWeekday(opt.Wkst)))

	return New(freq, interval, opts...)
}

// String renders the rule back into RRULE text. The output stays
// within the subset Parse accepts, so Parse(r.String()) yields a rule
// with the same occurrence set as r over any window.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Frequency.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if c, ok := r.Count.Get(); ok {
		parts = append(parts, "COUNT="+strconv.Itoa(c))
	}
	if u, ok := r.Until.Get(); ok {
		parts = append(parts, "UNTIL="+u.UTC().Format(untilLayout))
	}
	if len(r.ByWeekday) > 0 {
		tokens := make([]string, 0, len(r.ByWeekday))
		for _, d := range r.ByWeekday {
			tokens = append(tokens, weekdayToken(d))
		}
		parts = append(parts, "BYDAY="+strings.Join(tokens, ","))
	}
	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}
	if len(r.ByMonth) > 0 {
		tokens := make([]string, 0, len(r.ByMonth))
		for _, m := range r.ByMonth {
			tokens = append(tokens, strconv.Itoa(int(m)))
		}
		parts = append(parts, "BYMONTH="+strings.Join(tokens, ","))
	}
	if len(r.BySetPos) > 0 {
		parts = append(parts, "BYSETPOS="+joinInts(r.BySetPos))
	}
	if r.WeekStart != time.Monday {
		parts = append(parts, "WKST="+weekdayToken(r.WeekStart))
	}
	return strings.Join(parts, ";")
}

func joinInts(values []int) string {
	tokens := make([]string, 0, len(values))
	for _, v := range values {
		tokens = append(tokens, strconv.Itoa(v))
	}
	return strings.Join(tokens, ",")
}

var weekdayTokens = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

func weekdayToken(d time.Weekday) string {
	return weekdayTokens[d]
}

func freqToken(f rrule.Frequency) string {
	switch f {
	case rrule.YEARLY:
		return "YEARLY"
	case rrule.MONTHLY:
		return "MONTHLY"
	case rrule.WEEKLY:
		return "WEEKLY"
	case rrule.DAILY:
		return "DAILY"
	case rrule.HOURLY:
		return "HOURLY"
	case rrule.MINUTELY:
		return "MINUTELY"
	case rrule.SECONDLY:
		return "SECONDLY"
	default:
		return fmt.Sprintf("FREQ(%d)", int(f))
	}
}
