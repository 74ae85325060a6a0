package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mutter0815/BotDispatch/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Translate between schedule fields and cron expressions",
	}
	cmd.AddCommand(newScheduleBuildCmd())
	cmd.AddCommand(newScheduleParseCmd())
	cmd.AddCommand(newScheduleNextCmd())
	return cmd
}

func newScheduleBuildCmd() *cobra.Command {
	var (
		kind     string
		at       string
		days     string
		original string
	)

	c := &cobra.Command{
		Use:   "build",
		Short: "Print the expression for a manual, daily or weekly schedule",
		Example: `  botctl schedule build --kind daily --time 09:00
  botctl schedule build --kind weekly --time 18:30 --days 1,3,5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := schedule.ParseTimeOfDay(at)
			if err != nil {
				return err
			}
			wd, err := parseDays(days)
			if err != nil {
				return err
			}
			expr, err := schedule.Apply(original, schedule.Spec{Kind: schedule.Kind(kind), Time: t, Weekdays: wd})
			if err != nil {
				return err
			}
			if expr == "" && kind == string(schedule.KindCustom) {
				return schedule.ErrNotEditable
			}
			fmt.Fprintln(cmd.OutOrStdout(), expr)
			return nil
		},
	}

	c.Flags().StringVar(&kind, "kind", "daily", "manual, daily, weekly or custom")
	c.Flags().StringVar(&at, "time", schedule.DefaultTime.String(), "time of day HH:MM")
	c.Flags().StringVar(&days, "days", "", "weekly: comma separated weekdays, 0=Sunday")
	c.Flags().StringVar(&original, "original", "", "custom: stored expression to keep")
	return c
}

type specView struct {
	Kind        string `json:"kind"`
	Time        string `json:"time"`
	Weekdays    []int  `json:"weekdays"`
	Editable    bool   `json:"editable"`
	Description string `json:"description"`
}

func newScheduleParseCmd() *cobra.Command {
	var output string

	c := &cobra.Command{
		Use:   "parse [expression]",
		Short: "Show the schedule fields of a stored expression",
		Long:  "Show the schedule fields of a stored expression. No argument means a manual bot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args, " ")
			s := schedule.FromExpression(expr)
			v := specView{
				Kind:        string(s.Kind),
				Time:        s.Time.String(),
				Weekdays:    s.Weekdays,
				Editable:    s.Editable(),
				Description: schedule.Describe(expr),
			}
			if v.Weekdays == nil {
				v.Weekdays = []int{}
			}
			if output == "text" {
				fmt.Fprintln(cmd.OutOrStdout(), v.Description)
				return nil
			}
			return write(cmd.OutOrStdout(), output, v)
		},
	}

	c.Flags().StringVarP(&output, "output", "o", "text", "text, json or yaml")
	return c
}

func newScheduleNextCmd() *cobra.Command {
	var (
		count int
		tz    string
	)

	c := &cobra.Command{
		Use:   "next <expression>",
		Short: "List the next firing times of an expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid --tz: %w", err)
			}
			expr := strings.Join(args, " ")
			t := time.Now()
			for i := 0; i < count; i++ {
				t, err = schedule.NextRun(expr, t, loc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Format("Mon 2006-01-02 15:04 MST"))
			}
			return nil
		},
	}

	c.Flags().IntVarP(&count, "count", "n", 3, "number of runs to show")
	c.Flags().StringVar(&tz, "tz", "Local", "IANA time zone")
	return c
}

func parseDays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --days value %q", p)
		}
		out = append(out, d)
	}
	return out, nil
}
