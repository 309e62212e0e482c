package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		freq     Frequency
		interval int
		opts     []RuleOption
		wantErr  bool
	}{
		{
			name:     "plain daily rule",
			freq:     Daily,
			interval: 1,
		},
		{
			name:     "interval below one",
			freq:     Daily,
			interval: 0,
			wantErr:  true,
		},
		{
			name:     "negative interval",
			freq:     Weekly,
			interval: -3,
			wantErr:  true,
		},
		{
			name:     "count and until both set",
			freq:     Daily,
			interval: 1,
			opts: []RuleOption{
				WithCount(5),
				WithUntil(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
			},
			wantErr: true,
		},
		{
			name:     "count alone",
			freq:     Monthly,
			interval: 2,
			opts:     []RuleOption{WithCount(10)},
		},
		{
			name:     "until alone",
			freq:     Yearly,
			interval: 1,
			opts:     []RuleOption{WithUntil(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))},
		},
		{
			name:     "negative count",
			freq:     Daily,
			interval: 1,
			opts:     []RuleOption{WithCount(-1)},
			wantErr:  true,
		},
		{
			name:     "unknown frequency",
			freq:     Frequency(42),
			interval: 1,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := New(tt.freq, tt.interval, tt.opts...)
			if tt.wantErr {
				var invalid *InvalidRuleError
				require.Error(t, err)
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.freq, rule.Frequency)
			assert.Equal(t, tt.interval, rule.Interval)
			assert.Equal(t, time.Monday, rule.WeekStart)
		})
	}
}

func TestNew_NeverFailsAtUseTime(t *testing.T) {
	rule, err := New(Weekly, 1, WithByWeekday(time.Tuesday, time.Thursday))
	require.NoError(t, err)

	exp := NewRRuleExpander()
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err = exp.ExpandInWindow(anchor, rule,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestParse_UnsupportedFrequency(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "hourly", text: "FREQ=HOURLY"},
		{name: "minutely", text: "FREQ=MINUTELY;INTERVAL=30"},
		{name: "secondly", text: "FREQ=SECONDLY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			var unsupported *UnsupportedFrequencyError
			require.Error(t, err)
			assert.ErrorAs(t, err, &unsupported)
		})
	}
}

func TestParse_InvalidText(t *testing.T) {
	_, err := Parse("not an rrule")
	var invalid *InvalidRuleError
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalid)
}

func TestParse_Fields(t *testing.T) {
	rule, err := Parse("FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;WKST=SU")
	require.NoError(t, err)

	assert.Equal(t, Weekly, rule.Frequency)
	assert.Equal(t, 2, rule.Interval)
	assert.Equal(t, []time.Weekday{time.Tuesday, time.Thursday}, rule.ByWeekday)
	assert.Equal(t, time.Sunday, rule.WeekStart)
	assert.False(t, rule.Count.IsPresent())
	assert.False(t, rule.Until.IsPresent())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "plain daily", text: "FREQ=DAILY"},
		{name: "daily with count", text: "FREQ=DAILY;COUNT=5"},
		{name: "weekly byday", text: "FREQ=WEEKLY;BYDAY=TU,TH"},
		{name: "biweekly with week start", text: "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO;WKST=SU"},
		{name: "monthly by monthday", text: "FREQ=MONTHLY;BYMONTHDAY=1,15"},
		{name: "monthly last friday", text: "FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1"},
		{name: "yearly by month", text: "FREQ=YEARLY;BYMONTH=3,9"},
		{name: "until bound", text: "FREQ=DAILY;UNTIL=20240601T000000Z"},
	}

	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	windowStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := NewRRuleExpander()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.text)
			require.NoError(t, err)

			reparsed, err := Parse(parsed.String())
			require.NoError(t, err)

			// Equivalence means the same occurrence set over a finite
			// window, not identical text.
			want, err := exp.ExpandInWindow(anchor, parsed, windowStart, windowEnd)
			require.NoError(t, err)
			got, err := exp.ExpandInWindow(anchor, reparsed, windowStart, windowEnd)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.NotEmpty(t, want)
		})
	}
}
