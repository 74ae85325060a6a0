// Package schedule translates between the structured schedule a user picks
// in the bot form (manual, daily or weekly at a time of day) and the 5-field
// cron expression stored on the bot record.
//
// Only two expression shapes are produced and recognised as editable:
//
//	m h * * *         daily
//	m h * * d1,d2,... weekly, weekdays ascending, Sunday = 0
//
// Any other valid cron expression is kept as an opaque custom schedule.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Kind string

const (
	KindManual Kind = "manual"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
	KindCustom Kind = "custom"
)

var (
	ErrInvalidTime    = errors.New("schedule: time of day out of range")
	ErrNoWeekdays     = errors.New("schedule: weekly schedule needs at least one weekday")
	ErrInvalidWeekday = errors.New("schedule: weekday must be between 0 and 6")
	ErrNotEditable    = errors.New("schedule: custom schedule cannot be translated")
	ErrUnknownKind    = errors.New("schedule: unknown schedule kind")
)

// TimeOfDay is a wall-clock time in 24h form, local to the user.
type TimeOfDay struct {
	Hour   int `json:"hour"   yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// DefaultTime is used when an expression carries no editable time.
var DefaultTime = TimeOfDay{Hour: 9, Minute: 0}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTimeOfDay reads "H:MM" or "HH:MM" as sent by a native time picker.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(ms) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, okH := atoi(hs)
	m, okM := atoi(ms)
	t := TimeOfDay{Hour: h, Minute: m}
	if !okH || !okM || !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// Spec is the user-facing schedule intent.
type Spec struct {
	Kind     Kind      `json:"kind"               yaml:"kind"`
	Time     TimeOfDay `json:"time"               yaml:"time"`
	Weekdays []int     `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
}

// Editable reports whether s can go through the structured form.
func (s Spec) Editable() bool { return s.Kind != KindCustom }

func Manual() Spec { return Spec{Kind: KindManual, Time: DefaultTime} }

func Custom() Spec { return Spec{Kind: KindCustom, Time: DefaultTime} }

// Validate reports the errors a form must show before submitting.
func Validate(s Spec) error {
	switch s.Kind {
	case KindManual:
		return nil
	case KindDaily:
		if !s.Time.Valid() {
			return ErrInvalidTime
		}
		return nil
	case KindWeekly:
		if !s.Time.Valid() {
			return ErrInvalidTime
		}
		if len(s.Weekdays) == 0 {
			return ErrNoWeekdays
		}
		for _, d := range s.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
			}
		}
		return nil
	case KindCustom:
		return ErrNotEditable
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
}

// Normalize drops fields the kind ignores and sorts weekdays. Two specs
// that translate to the same expression normalize to equal values.
func Normalize(s Spec) Spec {
	out := Spec{Kind: s.Kind, Time: s.Time}
	switch s.Kind {
	case KindManual, KindCustom:
		out.Time = DefaultTime
	case KindWeekly:
		out.Weekdays = sortedDays(s.Weekdays)
	}
	return out
}

// ToExpression is the forward translation. Manual schedules yield "" (no
// recurrence). The schedule is validated first, so a weekly schedule without
// weekdays never produces an expression.
func ToExpression(s Spec) (string, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	switch s.Kind {
	case KindDaily:
		return fmt.Sprintf("%d %d * * *", s.Time.Minute, s.Time.Hour), nil
	case KindWeekly:
		days := sortedDays(s.Weekdays)
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = strconv.Itoa(d)
		}
		return fmt.Sprintf("%d %d * * %s", s.Time.Minute, s.Time.Hour, strings.Join(parts, ",")), nil
	}
	return "", nil
}

// FromExpression is the reverse translation. It never fails: anything that
// is not one of the two editable shapes comes back as KindCustom.
func FromExpression(expr string) Spec {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Manual()
	}
	f := strings.Fields(expr)
	if len(f) != 5 || f[2] != "*" || f[3] != "*" {
		return Custom()
	}
	m, okM := atoi(f[0])
	h, okH := atoi(f[1])
	t := TimeOfDay{Hour: h, Minute: m}
	if !okM || !okH || !t.Valid() {
		return Custom()
	}
	if f[4] == "*" {
		return Spec{Kind: KindDaily, Time: t}
	}
	days, ok := parseDays(f[4])
	if !ok {
		return Custom()
	}
	return Spec{Kind: KindWeekly, Time: t, Weekdays: days}
}

// Apply returns the expression to persist after a form submit. A custom
// schedule is read-only in the form, so the original expression is kept.
func Apply(original string, s Spec) (string, error) {
	if s.Kind == KindCustom {
		return strings.TrimSpace(original), nil
	}
	return ToExpression(s)
}

func parseDays(field string) ([]int, bool) {
	parts := strings.Split(field, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, ok := atoi(p)
		if !ok || d < 0 || d > 6 {
			return nil, false
		}
		days = append(days, d)
	}
	return sortedDays(days), true
}

func sortedDays(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// atoi accepts plain decimal digits only; cron syntax like "*/5", "1-5" or
// "+3" is rejected.
func atoi(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
