package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// 2025-05-07 is a Wednesday
func fixedClock() time.Time {
	return time.Date(2025, time.May, 7, 15, 30, 0, 0, time.UTC)
}

func newTestResolver(opts ...Option) *Resolver {
	base := []Option{WithDefaultYear(2025), WithClock(fixedClock)}
	return NewResolver(append(base, opts...)...)
}

func TestResolve_ExplicitForms(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		expr string
		want string
		form Form
	}{
		{"May 12", "2025-05-12", FormMonthDay},
		{"May 12, 2026", "2026-05-12", FormMonthDay},
		{"Sept. 3rd", "2025-09-03", FormMonthDay},
		{"december 1 at 11:59pm", "2025-12-01", FormMonthDay},
		{"5/12", "2025-05-12", FormNumeric},
		{"5/12/26", "2026-05-12", FormNumeric},
		{"05/12/2024", "2024-05-12", FormNumeric},
		{"Thursday, August 7", "2025-08-07", FormWeekdayPrefixed},
		{"Mon 9/8", "2025-09-08", FormWeekdayPrefixed},
		{"Due: May 12", "2025-05-12", FormMonthDay},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			res := r.Resolve(tt.expr)
			require.True(t, res.OK(), "expected %q to resolve", tt.expr)
			assert.Equal(t, tt.want, res.Date.String())
			assert.Equal(t, tt.form, res.Form)
		})
	}
}

func TestResolve_Relative(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		expr string
		want string
	}{
		{"today", "2025-05-07"},
		{"tomorrow", "2025-05-08"},
		{"next week", "2025-05-14"},
		{"this week", "2025-05-09"},
		{"end of week", "2025-05-09"},
		{"end of the week", "2025-05-09"},
		{"Monday", "2025-05-12"},
		{"Friday", "2025-05-09"},
		// the same weekday means the next one, never today
		{"Wednesday", "2025-05-14"},
		{"next Tuesday", "2025-05-13"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			res := r.Resolve(tt.expr)
			require.True(t, res.OK())
			assert.Equal(t, FormRelative, res.Form)
			assert.Equal(t, tt.want, res.Date.String())
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	r := newTestResolver()
	for _, expr := range []string{"", "someday", "Feb 30", "13/45", "2/29/2025", "TBD"} {
		res := r.Resolve(expr)
		assert.False(t, res.OK(), "%q should not resolve", expr)
		assert.Equal(t, FormUnresolved, res.Form)
		assert.True(t, res.Date.IsZero())
	}
}

func TestResolve_LeapDay(t *testing.T) {
	r := NewResolver(WithDefaultYear(2024), WithClock(fixedClock))
	res := r.Resolve("Feb 29")
	require.True(t, res.OK())
	assert.Equal(t, "2024-02-29", res.Date.String())
}

func TestResolve_Deterministic(t *testing.T) {
	r := newTestResolver()
	first := r.Resolve("Friday")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Resolve("Friday"))
	}
}

func TestResolve_DefaultYearFromClock(t *testing.T) {
	r := NewResolver(WithClock(fixedClock))
	assert.Equal(t, 2025, r.DefaultYear())
}

func TestResolve_OutsideSemesterIsKeptAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newTestResolver(
		WithLogger(zap.New(core)),
		WithSemester(
			time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC),
			time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC),
		),
	)

	res := r.Resolve("August 7")
	require.True(t, res.OK())
	assert.Equal(t, "2025-08-07", res.Date.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "date outside semester bounds", logs.All()[0].Message)

	res = r.Resolve("March 3")
	require.True(t, res.OK())
	assert.Equal(t, 1, logs.Len(), "in-bounds date must not warn")
}

func TestFind(t *testing.T) {
	r := newTestResolver()

	line := "Quiz 3: Chapter 5 Review (25 pts) Due: May 12"
	res := r.Find(line)
	require.True(t, res.OK())
	assert.Equal(t, "2025-05-12", res.Date.String())
	assert.Equal(t, "May 12", res.Match)
	assert.Equal(t, len(line)-len("May 12"), res.Index)

	res = r.Find("Exam 1 Thursday, August 7 in room 204")
	require.True(t, res.OK())
	assert.Equal(t, "Thursday, August 7", res.Match)
	assert.Equal(t, FormWeekdayPrefixed, res.Form)

	res = r.Find("Discussion post due Friday")
	require.True(t, res.OK())
	assert.Equal(t, "2025-05-09", res.Date.String())

	res = r.Find("Read chapter 4")
	assert.False(t, res.OK())
	assert.Equal(t, -1, res.Index)
}

func TestFind_WeekdayPrefixedDateAfterDueWord(t *testing.T) {
	r := newTestResolver()
	tests := []struct {
		line  string
		want  string
		match string
	}{
		{"Quiz 2 due Thursday, August 7", "2025-08-07", "Thursday, August 7"},
		{"Exam 1 on Monday, May 19", "2025-05-19", "Monday, May 19"},
		{"Paper due: Friday 5/30", "2025-05-30", "Friday 5/30"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			res := r.Find(tt.line)
			require.True(t, res.OK())
			assert.Equal(t, tt.want, res.Date.String())
			assert.Equal(t, FormWeekdayPrefixed, res.Form)
			assert.Equal(t, tt.match, res.Match)
		})
	}
}

func TestFind_PicksEarliest(t *testing.T) {
	r := newTestResolver()
	res := r.Find("Paper draft 5/2, final due May 20")
	require.True(t, res.OK())
	assert.Equal(t, "2025-05-02", res.Date.String())
}
