package bot

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Mutter0815/BotDispatch/internal/dispatch"
	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
)

const (
	ReasonNoRecipients     = "no_recipients"
	ReasonResolutionFailed = "resolution_failed"
)

// Run is one dispatch as written to the journal.
type Run struct {
	BotID      string
	Account    string
	Trigger    string
	Body       string
	Status     string
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     dispatch.Result
}

const (
	RunCompleted = "completed"
	RunCanceled  = "canceled"
	RunRefused   = "refused"
)

type Journal interface {
	RecordRun(ctx context.Context, run Run) (int64, error)
}

// Summary is what a caller gets back from a trigger. Attempted=false means
// nothing was sent and the configuration needs fixing; otherwise Result
// says which recipients failed.
type Summary struct {
	Attempted    bool            `json:"attempted"`
	Reason       string          `json:"reason,omitempty"`
	FailedGroups []string        `json:"failed_groups,omitempty"`
	Result       dispatch.Result `json:"result"`
	RunID        int64           `json:"run_id,omitempty"`
}

type Service struct {
	Bots       Store
	Resolver   *target.Resolver
	Dispatcher *dispatch.Dispatcher
	Journal    Journal
	Now        func() time.Time
	Logger     *zap.SugaredLogger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Trigger loads a bot and sends its rendered template to all of its
// targets. Scheduled triggers of inactive bots are refused with
// ErrInactive; manual triggers run regardless.
func (s *Service) Trigger(ctx context.Context, botID, trigger string) (Summary, error) {
	b, err := s.Bots.GetBot(ctx, botID)
	if err != nil {
		return Summary{}, err
	}
	if trigger == TriggerSchedule && !b.IsActive {
		return Summary{}, ErrInactive
	}
	body := Render(b.MessageTemplate, s.now())
	return s.run(ctx, b.ID, b.SessionID, trigger, b.Targets(), body)
}

// SendNow is the manual send action: body goes out as given.
func (s *Service) SendNow(ctx context.Context, account string, targets target.List, body string) (Summary, error) {
	return s.run(ctx, "", account, TriggerSendNow, targets, body)
}

func (s *Service) run(ctx context.Context, botID, account, trigger string, targets target.List, body string) (Summary, error) {
	lg := logx.Or(s.Logger).With("bot_id", botID, "account", account, "trigger", trigger)
	run := Run{BotID: botID, Account: account, Trigger: trigger, Body: body, StartedAt: s.now()}

	addrs, err := s.Resolver.Resolve(ctx, targets)
	if err != nil {
		sum := Summary{Attempted: false}
		var rerr *target.ResolutionError
		switch {
		case errors.As(err, &rerr):
			sum.Reason = ReasonResolutionFailed
			sum.FailedGroups = rerr.Groups()
		case errors.Is(err, target.ErrNoRecipients):
			sum.Reason = ReasonNoRecipients
		default:
			return Summary{}, err
		}
		metrics.ResolveErrorsTotal.WithLabelValues(sum.Reason).Inc()
		metrics.DispatchRunsTotal.WithLabelValues(RunRefused).Inc()
		lg.Warnw("dispatch_refused", "reason", sum.Reason, "error", err)

		run.Status, run.Reason = RunRefused, sum.Reason
		run.FinishedAt = s.now()
		sum.RunID = s.record(ctx, lg, run)
		return sum, err
	}

	res, derr := s.Dispatcher.Dispatch(ctx, account, addrs, body)
	run.Result = res
	run.FinishedAt = s.now()
	run.Status = RunCompleted
	if res.Canceled {
		run.Status = RunCanceled
	}
	metrics.DispatchRunsTotal.WithLabelValues(run.Status).Inc()

	sum := Summary{Attempted: true, Result: res}
	sum.RunID = s.record(ctx, lg, run)
	return sum, derr
}

// record never fails the dispatch; the journal is best effort.
func (s *Service) record(ctx context.Context, lg *zap.SugaredLogger, run Run) int64 {
	if s.Journal == nil {
		return 0
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	id, err := s.Journal.RecordRun(jctx, run)
	if err != nil {
		lg.Errorw("journal_record_error", "error", err)
		return 0
	}
	return id
}

// Transient reports whether a failed trigger may succeed when retried
// unchanged: backend outages yes, configuration problems no.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInactive), errors.Is(err, target.ErrNoRecipients):
		return false
	}
	var rerr *target.ResolutionError
	if errors.As(err, &rerr) {
		for _, f := range rerr.Failures {
			if !errors.Is(f.Err, target.ErrGroupNotFound) {
				return true
			}
		}
		return false
	}
	return true
}
