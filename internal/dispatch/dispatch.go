// Package dispatch sends one message to every resolved address and sums up
// the per-recipient outcomes.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
)

// Receipt is what a successful send returns. MessageID may be empty.
type Receipt struct {
	MessageID string
}

// Sender delivers one message to one address through a messaging account.
// Failures should be *SendError; other errors are classified by Classify.
type Sender interface {
	Send(ctx context.Context, account, to, body string) (Receipt, error)
}

// Outcome is the fate of one resolved address.
type Outcome struct {
	Address   string    `json:"address"`
	Attempted bool      `json:"attempted"`
	Failed    bool      `json:"failed,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Result summarises a dispatch. SuccessCount+FailureCount+Skipped always
// equals TotalTargets; Skipped is non-zero only when the run was canceled.
type Result struct {
	TotalTargets       int               `json:"total_targets"`
	SuccessCount       int               `json:"success_count"`
	FailureCount       int               `json:"failure_count"`
	Skipped            int               `json:"skipped,omitempty"`
	Canceled           bool              `json:"canceled,omitempty"`
	PerRecipientErrors map[string]string `json:"per_recipient_errors"`
	Outcomes           []Outcome         `json:"outcomes,omitempty"`
}

type Dispatcher struct {
	Sender Sender
	// Concurrency above 1 sends through a bounded pool; 0 or 1 is strictly
	// sequential in resolved order.
	Concurrency int
	// Limiter, when set, spaces sends out in both modes.
	Limiter *rate.Limiter
	// SendTimeout bounds a single send call.
	SendTimeout time.Duration
	Logger      *zap.SugaredLogger
}

func New(s Sender) *Dispatcher {
	return &Dispatcher{Sender: s, Concurrency: 1}
}

// WithRate limits sends to perSecond (burst 1). Zero or less disables it.
func (d *Dispatcher) WithRate(perSecond float64) *Dispatcher {
	if perSecond > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	} else {
		d.Limiter = nil
	}
	return d
}

// Dispatch sends body to each address exactly once. Per-recipient failures
// are recorded in the result and never stop the batch.
//
// An empty address list is refused with target.ErrNoRecipients. If ctx is
// canceled, no new sends start; sends already issued finish normally, and
// the partial result is returned together with ctx.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, account string, addresses []string, body string) (Result, error) {
	if len(addresses) == 0 {
		return Result{PerRecipientErrors: map[string]string{}}, target.ErrNoRecipients
	}
	outcomes := make([]Outcome, len(addresses))
	for i, a := range addresses {
		outcomes[i].Address = a
	}

	var stop error
	if d.Concurrency > 1 {
		stop = d.runPool(ctx, account, body, outcomes)
	} else {
		stop = d.runSequential(ctx, account, body, outcomes)
	}

	res := tally(outcomes)
	lg := logx.Or(d.Logger)
	lg.Infow("dispatch_done",
		"account", account,
		"total", res.TotalTargets,
		"success", res.SuccessCount,
		"failed", res.FailureCount,
		"skipped", res.Skipped,
	)
	if res.Canceled {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// The limiter gives up early when the next slot falls past the deadline.
		return res, fmt.Errorf("dispatch: %d of %d not sent: %w", res.Skipped, res.TotalTargets, stop)
	}
	return res, nil
}

// runSequential and runPool return why sending stopped early, or nil.
func (d *Dispatcher) runSequential(ctx context.Context, account, body string, outcomes []Outcome) error {
	for i := range outcomes {
		if err := d.wait(ctx); err != nil {
			return err
		}
		outcomes[i] = d.send(ctx, account, outcomes[i].Address, body)
	}
	return nil
}

func (d *Dispatcher) runPool(ctx context.Context, account, body string, outcomes []Outcome) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		stop error
	)
	g.SetLimit(d.Concurrency)
	for i := range outcomes {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			if stop == nil {
				stop = err
			}
			mu.Unlock()
			break
		}
		g.Go(func() error {
			if err := d.wait(ctx); err != nil {
				mu.Lock()
				if stop == nil {
					stop = err
				}
				mu.Unlock()
				return nil
			}
			outcomes[i] = d.send(ctx, account, outcomes[i].Address, body)
			return nil
		})
	}
	_ = g.Wait()
	return stop
}

// wait blocks until the next send may start.
func (d *Dispatcher) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, account, addr, body string) Outcome {
	// A send that has started is not aborted by caller cancellation.
	sctx := context.WithoutCancel(ctx)
	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, d.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	rcpt, err := d.Sender.Send(sctx, account, addr, body)
	metrics.DispatchSendDuration.Observe(time.Since(start).Seconds())

	out := Outcome{Address: addr, Attempted: true}
	if err != nil {
		se := asSendError(err)
		out.Failed = true
		out.Kind = se.Kind
		out.Error = se.Error()
		metrics.DispatchSendsTotal.WithLabelValues("failed", string(se.Kind)).Inc()
		logx.Or(d.Logger).Infow("send_failed", "account", account, "address", addr, "kind", se.Kind, "error", err)
		return out
	}
	out.MessageID = rcpt.MessageID
	metrics.DispatchSendsTotal.WithLabelValues("sent", "").Inc()
	logx.Or(d.Logger).Debugw("send_success", "account", account, "address", addr, "message_id", rcpt.MessageID)
	return out
}

func tally(outcomes []Outcome) Result {
	res := Result{
		TotalTargets:       len(outcomes),
		PerRecipientErrors: make(map[string]string),
		Outcomes:           outcomes,
	}
	for _, o := range outcomes {
		switch {
		case !o.Attempted:
			res.Skipped++
		case o.Failed:
			res.FailureCount++
			res.PerRecipientErrors[o.Address] = o.Error
		default:
			res.SuccessCount++
		}
	}
	res.Canceled = res.Skipped > 0
	return res
}

// Task is a dispatch running in the background.
type Task struct {
	done chan struct{}
	once sync.Once
	res  Result
	err  error
}

// Start runs Dispatch in its own goroutine and returns immediately.
func (d *Dispatcher) Start(ctx context.Context, account string, addresses []string, body string) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		res, err := d.Dispatch(ctx, account, addresses, body)
		t.finish(res, err)
	}()
	return t
}

func (t *Task) finish(res Result, err error) {
	t.once.Do(func() {
		t.res, t.err = res, err
		close(t.done)
	})
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the dispatch finishes or ctx ends. Giving up on the
// wait does not cancel the dispatch.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
