package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mutter0815/BotDispatch/internal/app"
	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/config"
)

type dispatchFlags struct {
	concurrency int
	rate        float64
	dedupe      bool
	output      string
}

func (f *dispatchFlags) register(c *cobra.Command) {
	c.Flags().IntVar(&f.concurrency, "concurrency", 1, "parallel sends, 1 keeps target order")
	c.Flags().Float64Var(&f.rate, "rate", 0, "max sends per second, 0 for no limit")
	c.Flags().BoolVar(&f.dedupe, "dedupe", false, "skip repeated numbers")
	c.Flags().StringVarP(&f.output, "output", "o", "text", "text, json or yaml")
}

func (f *dispatchFlags) service() (*bot.Service, error) {
	b, err := config.LoadBackend()
	if err != nil {
		return nil, err
	}
	if f.concurrency < 1 {
		return nil, fmt.Errorf("invalid --concurrency %d", f.concurrency)
	}
	d := config.DispatchConfig{Concurrency: f.concurrency, Rate: f.rate, Dedupe: f.dedupe}
	return app.NewBotService(b, d, nil), nil
}

// interruptible cancels on Ctrl-C; sends in flight still finish.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newSendCmd() *cobra.Command {
	var (
		f       dispatchFlags
		session string
		targets string
		message string
	)

	c := &cobra.Command{
		Use:   "send",
		Short: "Send one message to numbers and contact groups now",
		Example: `  botctl send --session main --targets "15551230001, group:42" --message "Standup in 5"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := f.service()
			if err != nil {
				return err
			}
			ctx, cancel := interruptible(cmd)
			defer cancel()

			sum, err := svc.SendNow(ctx, session, target.Parse(targets), message)
			return report(cmd.OutOrStdout(), f.output, sum, err)
		},
	}

	f.register(c)
	c.Flags().StringVar(&session, "session", "", "WhatsApp session id to send from")
	c.Flags().StringVar(&targets, "targets", "", "comma separated numbers and group:<id> references")
	c.Flags().StringVar(&message, "message", "", "message text")
	_ = c.MarkFlagRequired("session")
	_ = c.MarkFlagRequired("message")
	return c
}

func newTriggerCmd() *cobra.Command {
	var f dispatchFlags

	c := &cobra.Command{
		Use:   "trigger <bot-id>",
		Short: "Run a stored bot right away",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := f.service()
			if err != nil {
				return err
			}
			ctx, cancel := interruptible(cmd)
			defer cancel()

			sum, err := svc.Trigger(ctx, args[0], bot.TriggerManual)
			if errors.Is(err, bot.ErrNotFound) {
				return fmt.Errorf("bot %s not found", args[0])
			}
			return report(cmd.OutOrStdout(), f.output, sum, err)
		},
	}

	f.register(c)
	return c
}

// report prints the summary and turns refusals and interrupted batches
// into a non-zero exit. Per-recipient failures are only reported.
func report(w io.Writer, format string, sum bot.Summary, err error) error {
	if !sum.Attempted && err != nil {
		if sum.Reason == "" {
			return err
		}
		if format != "text" {
			_ = write(w, format, sum)
		}
		return fmt.Errorf("nothing sent (%s): %w", sum.Reason, err)
	}

	if format != "text" {
		if werr := write(w, format, sum); werr != nil {
			return werr
		}
	} else {
		r := sum.Result
		fmt.Fprintf(w, "sent %d/%d, failed %d", r.SuccessCount, r.TotalTargets, r.FailureCount)
		if r.Skipped > 0 {
			fmt.Fprintf(w, ", skipped %d", r.Skipped)
		}
		fmt.Fprintln(w)
		addrs := make([]string, 0, len(r.PerRecipientErrors))
		for a := range r.PerRecipientErrors {
			addrs = append(addrs, a)
		}
		sort.Strings(addrs)
		for _, a := range addrs {
			fmt.Fprintf(w, "  %s: %s\n", a, r.PerRecipientErrors[a])
		}
	}
	if err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}
