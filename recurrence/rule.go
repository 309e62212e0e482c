// Package recurrence models recurrence patterns and their expansion
// into concrete occurrence instants. The recurrence math itself is
// delegated to github.com/teambition/rrule-go behind the Expander
// contract; this package only validates rules and maps them onto it.
package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Frequency is the base repetition unit of a rule. Sub-daily
// frequencies (hourly and below) are not supported.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return fmt.Sprintf("FREQUENCY(%d)", int(f))
	}
}

// Rule is an immutable recurrence pattern. Construct it with New so
// the invariants (interval >= 1, count and until mutually exclusive)
// hold from the start; a Rule that fails validation is never usable.
type Rule struct {
	Frequency  Frequency
	Interval   int
	Count      mo.Option[int]
	Until      mo.Option[time.Time]
	ByWeekday  []time.Weekday
	ByMonthDay []int
	ByMonth    []time.Month
	BySetPos   []int
	WeekStart  time.Weekday
}

// RuleOption configures optional rule fields during construction.
type RuleOption func(*Rule)

// WithCount limits the rule to n occurrences total. A zero count is a
// valid, exhausted rule that generates nothing.
func WithCount(n int) RuleOption {
	return func(r *Rule) { r.Count = mo.Some(n) }
}

// WithUntil limits the rule to occurrences at or before t.
func WithUntil(t time.Time) RuleOption {
	return func(r *Rule) { r.Until = mo.Some(t) }
}

// WithByWeekday restricts occurrences to the given weekdays.
func WithByWeekday(days ...time.Weekday) RuleOption {
	return func(r *Rule) { r.ByWeekday = append(r.ByWeekday, days...) }
}

// WithByMonthDay restricts occurrences to the given days of the month.
// Negative values count from the end of the month.
func WithByMonthDay(days ...int) RuleOption {
	return func(r *Rule) { r.ByMonthDay = append(r.ByMonthDay, days...) }
}

// WithByMonth restricts occurrences to the given months.
func WithByMonth(months ...time.Month) RuleOption {
	return func(r *Rule) { r.ByMonth = append(r.ByMonth, months...) }
}

// WithBySetPos selects the n-th occurrence(s) within each interval,
// e.g. -1 for "last matching day of the period".
func WithBySetPos(pos ...int) RuleOption {
	return func(r *Rule) { r.BySetPos = append(r.BySetPos, pos...) }
}

// WithWeekStart sets the first day of the week, which affects weekly
// intervals greater than one. The default is Monday.
func WithWeekStart(d time.Weekday) RuleOption {
	return func(r *Rule) { r.WeekStart = d }
}

// New builds a validated Rule. It returns *InvalidRuleError if the
// interval is below one, the frequency is unknown, or both a count and
// an until bound are set.
func New(freq Frequency, interval int, opts ...RuleOption) (Rule, error) {
	r := Rule{
		Frequency: freq,
		Interval:  interval,
		WeekStart: time.Monday,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (r Rule) validate() error {
	if r.Frequency < Daily || r.Frequency > Yearly {
		return &InvalidRuleError{Reason: fmt.Sprintf("unknown frequency %d", int(r.Frequency))}
	}
	if r.Interval < 1 {
		return &InvalidRuleError{Reason: fmt.Sprintf("interval must be at least 1, got %d", r.Interval)}
	}
	if r.Count.IsPresent() && r.Until.IsPresent() {
		return &InvalidRuleError{Reason: "count and until are mutually exclusive"}
	}
	if c, ok := r.Count.Get(); ok && c < 0 {
		return &InvalidRuleError{Reason: fmt.Sprintf("count must not be negative, got %d", c)}
	}
	return nil
}

// rOption maps the rule onto an rrule-go option set anchored at the
// given instant.
func (r Rule) rOption(anchor time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:     r.Frequency.rruleFreq(),
		Interval: r.Interval,
		Dtstart:  anchor,
		Wkst:     rruleWeekday(r.WeekStart),
	}
	if c, ok := r.Count.Get(); ok {
		opt.Count = c
	}
	if u, ok := r.Until.Get(); ok {
		opt.Until = u
	}
	for _, d := range r.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday(d))
	}
	opt.Bymonthday = append(opt.Bymonthday, r.ByMonthDay...)
	for _, m := range r.ByMonth {
		opt.Bymonth = append(opt.Bymonth, int(m))
	}
	opt.Bysetpos = append(opt.Bysetpos, r.BySetPos...)
	return opt
}

func (f Frequency) rruleFreq() rrule.Frequency {
	switch f {
	case Weekly:
		return rrule.WEEKLY
	case Monthly:
		return rrule.MONTHLY
	case Yearly:
		return rrule.YEARLY
	default:
		return rrule.DAILY
	}
}

// rrule-go numbers weekdays from Monday=0; time.Weekday from Sunday=0.
var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

func rruleWeekday(d time.Weekday) rrule.Weekday {
	return rruleWeekdays[d]
}

func timeWeekday(w rrule.Weekday) time.Weekday {
	return time.Weekday((w.Day() + 1) % 7)
}
