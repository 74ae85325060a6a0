package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToExpression(t *testing.T) {
	tests := []struct {
		name string
		in   Spec
		want string
	}{
		{"manual", Spec{Kind: KindManual, Time: TimeOfDay{7, 30}}, ""},
		{"daily", Spec{Kind: KindDaily, Time: TimeOfDay{9, 0}}, "0 9 * * *"},
		{"daily ignores weekdays", Spec{Kind: KindDaily, Time: TimeOfDay{23, 59}, Weekdays: []int{1}}, "59 23 * * *"},
		{"weekly", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}, Weekdays: []int{1, 3, 5}}, "0 9 * * 1,3,5"},
		{"weekly unordered", Spec{Kind: KindWeekly, Time: TimeOfDay{18, 15}, Weekdays: []int{2, 0, 5}}, "15 18 * * 0,2,5"},
		{"weekly duplicates", Spec{Kind: KindWeekly, Time: TimeOfDay{0, 0}, Weekdays: []int{6, 6, 1}}, "0 0 * * 1,6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToExpression(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToExpression_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Spec
		want error
	}{
		{"weekly without days", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}}, ErrNoWeekdays},
		{"hour out of range", Spec{Kind: KindDaily, Time: TimeOfDay{24, 0}}, ErrInvalidTime},
		{"minute out of range", Spec{Kind: KindWeekly, Time: TimeOfDay{1, 60}, Weekdays: []int{1}}, ErrInvalidTime},
		{"negative minute", Spec{Kind: KindDaily, Time: TimeOfDay{1, -1}}, ErrInvalidTime},
		{"bad weekday", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}, Weekdays: []int{7}}, ErrInvalidWeekday},
		{"custom", Custom(), ErrNotEditable},
		{"unknown", Spec{Kind: "hourly"}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToExpression(tt.in)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, got)
		})
	}
}

func TestFromExpression(t *testing.T) {
	tests := []struct {
		in   string
		want Spec
	}{
		{"", Manual()},
		{"   ", Manual()},
		{"0 9 * * *", Spec{Kind: KindDaily, Time: TimeOfDay{9, 0}}},
		{" 30  7 * * * ", Spec{Kind: KindDaily, Time: TimeOfDay{7, 30}}},
		{"0 9 * * 1,3,5", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}, Weekdays: []int{1, 3, 5}}},
		{"0 9 * * 5,1", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}, Weekdays: []int{1, 5}}},
		{"0 9 * * 0", Spec{Kind: KindWeekly, Time: TimeOfDay{9, 0}, Weekdays: []int{0}}},
		{"1 2 3 4 5", Custom()},
		{"0 9 1 * *", Custom()},
		{"0 9 * 1 *", Custom()},
		{"*/5 * * * *", Custom()},
		{"0 9 * * 1-5", Custom()},
		{"0 9 * * MON", Custom()},
		{"0 9 * * 1,,3", Custom()},
		{"0 9 * * 7", Custom()},
		{"60 9 * * *", Custom()},
		{"0 24 * * *", Custom()},
		{"0 9 * *", Custom()},
		{"0 0 9 * * *", Custom()},
		{"@daily", Custom()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FromExpression(tt.in))
		})
	}
}

func TestRoundTrip_Daily(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			in := Spec{Kind: KindDaily, Time: TimeOfDay{h, m}}
			expr, err := ToExpression(in)
			require.NoError(t, err)
			require.Equal(t, in, FromExpression(expr))

			again, err := ToExpression(FromExpression(expr))
			require.NoError(t, err)
			require.Equal(t, expr, again)
		}
	}
}

func TestRoundTrip_Weekly(t *testing.T) {
	times := []TimeOfDay{{0, 0}, {9, 0}, {12, 34}, {23, 59}}
	for mask := 1; mask < 1<<7; mask++ {
		var days []int
		for d := 6; d >= 0; d-- { // descending on purpose
			if mask&(1<<d) != 0 {
				days = append(days, d)
			}
		}
		for _, tod := range times {
			in := Spec{Kind: KindWeekly, Time: tod, Weekdays: days}
			expr, err := ToExpression(in)
			require.NoError(t, err)

			back := FromExpression(expr)
			require.Equal(t, Normalize(in), back)
			require.ElementsMatch(t, days, back.Weekdays)

			again, err := ToExpression(back)
			require.NoError(t, err)
			require.Equal(t, expr, again)
		}
	}
}

func TestRoundTrip_Manual(t *testing.T) {
	in := Spec{Kind: KindManual, Time: TimeOfDay{14, 0}, Weekdays: []int{2}}
	expr, err := ToExpression(in)
	require.NoError(t, err)
	assert.Empty(t, expr)
	assert.Equal(t, Normalize(in), FromExpression(expr))
}

func TestWeekdayOrderIndependence(t *testing.T) {
	a, err := ToExpression(Spec{Kind: KindWeekly, Time: TimeOfDay{8, 0}, Weekdays: []int{2, 0, 5}})
	require.NoError(t, err)
	b, err := ToExpression(Spec{Kind: KindWeekly, Time: TimeOfDay{8, 0}, Weekdays: []int{0, 2, 5}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, []int{0, 2, 5}, FromExpression(a).Weekdays)
}

func TestApply_KeepsCustom(t *testing.T) {
	orig := "*/15 8-18 * * 1-5"
	spec := FromExpression(orig)
	require.False(t, spec.Editable())

	got, err := Apply(orig, spec)
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	got, err = Apply(orig, Spec{Kind: KindDaily, Time: TimeOfDay{6, 5}})
	require.NoError(t, err)
	assert.Equal(t, "5 6 * * *", got)

	got, err = Apply(orig, Manual())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{9, 5}, got)

	got, err = ParseTimeOfDay("7:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{7, 30}, got)
	assert.Equal(t, "07:30", got.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "12:5", "ab:cd", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestValidateExpression(t *testing.T) {
	assert.NoError(t, ValidateExpression(""))
	assert.NoError(t, ValidateExpression("0 9 * * 1,3,5"))
	assert.NoError(t, ValidateExpression("1 2 3 4 5"))
	assert.NoError(t, ValidateExpression("*/15 8-18 * * MON-FRI"))
	assert.Error(t, ValidateExpression("0 9 * *"))
	assert.Error(t, ValidateExpression("61 9 * * *"))
	assert.Error(t, ValidateExpression("not a cron"))
}

func TestNextRun(t *testing.T) {
	// 2026-10-18 is a Sunday.
	from := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * 1,3,5", from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), next)

	next, err = NextRun("30 10 * * *", from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC), next)

	_, err = NextRun("bogus", from, time.UTC)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Manual only", Describe(""))
	assert.Equal(t, "Daily at 09:00", Describe("0 9 * * *"))
	assert.Equal(t, "Weekly on Mon, Wed, Fri at 09:00", Describe("0 9 * * 1,3,5"))
	assert.Equal(t, "Custom: 1 2 3 4 5", Describe("1 2 3 4 5"))
}
