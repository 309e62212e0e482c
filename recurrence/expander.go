package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Expander generates the occurrence instants of a rule inside a
// window. Implementations must be deterministic, return instants in
// ascending order within [windowStart, windowEnd), and never produce
// an instant before the anchor. The window bound keeps expansion
// finite even for rules with no count or until.
type Expander interface {
	ExpandInWindow(anchor time.Time, rule Rule, windowStart, windowEnd time.Time) ([]time.Time, error)
}

// RRuleExpander is the default Expander, backed by rrule-go.
type RRuleExpander struct{}

// NewRRuleExpander creates the rrule-go backed expander.
func NewRRuleExpander() *RRuleExpander {
	return &RRuleExpander{}
}

// ExpandInWindow implements Expander.
func (*RRuleExpander) ExpandInWindow(anchor time.Time, rule Rule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if !windowEnd.After(windowStart) {
		return nil, nil
	}
	// A zero count means the series is exhausted and generates nothing;
	// rrule-go reads a zero Count as "no count bound".
	if c, ok := rule.Count.Get(); ok && c == 0 {
		return nil, nil
	}
	rr, err := rrule.NewRRule(rule.rOption(anchor))
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}

	// Between with inc=true is inclusive on both bounds; the window is
	// half-open, so instants equal to windowEnd are dropped. Instants
	// before the anchor cannot occur (Between starts at dtstart), but
	// the window may start earlier than the anchor.
	raw := rr.Between(windowStart, windowEnd, true)
	out := make([]time.Time, 0, len(raw))
	for _, t := range raw {
		if !t.Before(windowEnd) {
			continue
		}
		if t.Before(anchor) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
