package schedule

import (
	"fmt"
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

var parser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

// Parse compiles a standard 5-field expression, custom shapes included.
func Parse(expr string) (robfigcron.Schedule, error) {
	s, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid expression %q: %w", expr, err)
	}
	return s, nil
}

// ValidateExpression checks a value before it is stored on a bot. An empty
// expression means manual and is always valid.
func ValidateExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := Parse(expr)
	return err
}

// NextRun returns the first firing strictly after t, evaluated in loc.
func NextRun(expr string, t time.Time, loc *time.Location) (time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	return s.Next(t.In(loc)), nil
}

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders an expression for bot listings.
func Describe(expr string) string {
	s := FromExpression(expr)
	switch s.Kind {
	case KindManual:
		return "Manual only"
	case KindDaily:
		return "Daily at " + s.Time.String()
	case KindWeekly:
		names := make([]string, len(s.Weekdays))
		for i, d := range s.Weekdays {
			names[i] = dayNames[d]
		}
		return fmt.Sprintf("Weekly on %s at %s", strings.Join(names, ", "), s.Time)
	}
	return "Custom: " + strings.TrimSpace(expr)
}
