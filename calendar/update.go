package calendar

import (
	"time"

	"github.com/samber/mo"

	"github.com/kalendr/librecur/recurrence"
)

// RuleUpdate distinguishes three intents for an event's recurrence
// rule during a partial update: leave it alone, replace it, or clear
// it. A plain nullable field cannot tell "omitted" from "explicitly
// cleared", which matters when a host turns a series back into a
// standalone event.
type RuleUpdate struct {
	set   bool
	value mo.Option[recurrence.Rule]
}

// KeepRule leaves the current rule unchanged. It is the zero value.
func KeepRule() RuleUpdate {
	return RuleUpdate{}
}

// SetRule replaces the current rule with r.
func SetRule(r recurrence.Rule) RuleUpdate {
	return RuleUpdate{set: true, value: mo.Some(r)}
}

// ClearRule removes the rule, turning a master back into a standalone
// event.
func ClearRule() RuleUpdate {
	return RuleUpdate{set: true, value: mo.None[recurrence.Rule]()}
}

// IsKeep reports whether the update leaves the rule untouched.
func (u RuleUpdate) IsKeep() bool { return !u.set }

// Apply resolves the update against the current rule pointer.
func (u RuleUpdate) Apply(current *recurrence.Rule) *recurrence.Rule {
	if !u.set {
		return current
	}
	if r, ok := u.value.Get(); ok {
		return &r
	}
	return nil
}

// EventPatch is a partial event update: absent fields keep their
// current value.
type EventPatch struct {
	Title       mo.Option[string]
	Start       mo.Option[time.Time]
	End         mo.Option[time.Time]
	AllDay      mo.Option[bool]
	Description mo.Option[string]
	Location    mo.Option[string]
	Rule        RuleUpdate
}

// ApplyTo returns a copy of e with the patch applied.
func (p EventPatch) ApplyTo(e Event) Event {
	out := e.Clone()
	if v, ok := p.Title.Get(); ok {
		out.Title = v
	}
	if v, ok := p.Start.Get(); ok {
		out.Start = v
	}
	if v, ok := p.End.Get(); ok {
		out.End = v
	}
	if v, ok := p.AllDay.Get(); ok {
		out.AllDay = v
	}
	if v, ok := p.Description.Get(); ok {
		out.Description = v
	}
	if v, ok := p.Location.Get(); ok {
		out.Location = v
	}
	out.Rule = p.Rule.Apply(out.Rule)
	return out
}
