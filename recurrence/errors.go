package recurrence

import "fmt"

// InvalidRuleError reports a rule that fails construction-time
// validation. It is never raised at expansion time.
type InvalidRuleError struct {
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return "invalid recurrence rule: " + e.Reason
}

// UnsupportedFrequencyError reports a textual rule whose frequency is
// finer-grained than daily.
type UnsupportedFrequencyError struct {
	Frequency string
}

func (e *UnsupportedFrequencyError) Error() string {
	return fmt.Sprintf("unsupported recurrence frequency %q: sub-daily frequencies are not supported", e.Frequency)
}
