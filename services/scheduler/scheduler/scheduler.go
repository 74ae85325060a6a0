// Package scheduler fires bots on their stored schedule. It never sends
// anything itself: each firing becomes a trigger job on the queue.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/schedule"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
	"github.com/Mutter0815/BotDispatch/pkg/model"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
)

type botLister interface {
	ListBots(ctx context.Context) ([]bot.Bot, error)
}

type publisherAPI interface {
	PublishJSON(ctx context.Context, body []byte) error
}

type entry struct {
	id   robfigcron.EntryID
	expr string
}

type Scheduler struct {
	Bots     botLister
	Pub      publisherAPI
	Interval time.Duration
	Loc      *time.Location
	Now      func() time.Time

	mu      sync.Mutex
	cron    *robfigcron.Cron
	entries map[string]entry // bot id
}

func New(bots botLister, pub *rmq.Publisher, interval time.Duration, loc *time.Location) *Scheduler {
	return newScheduler(bots, pub, interval, loc)
}

func newScheduler(bots botLister, pub publisherAPI, interval time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Bots:     bots,
		Pub:      pub,
		Interval: interval,
		Loc:      loc,
		cron:     robfigcron.New(robfigcron.WithLocation(loc)),
		entries:  make(map[string]entry),
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run syncs once, then keeps the registrations in line with the backend
// every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		logx.L().Warnw("scheduler_sync_error", "error", err)
	}
	s.cron.Start()
	logx.L().Infow("scheduler_started", "interval", s.Interval.String(), "tz", s.Loc.String())

	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			logx.L().Infow("scheduler_stopped")
			return ctx.Err()
		case <-t.C:
			if err := s.Sync(ctx); err != nil {
				logx.L().Warnw("scheduler_sync_error", "error", err)
			}
		}
	}
}

// Sync registers every active bot with a valid expression and drops
// entries whose bot is gone, inactive or rescheduled. On a listing error
// the current registrations stay as they are.
func (s *Scheduler) Sync(ctx context.Context) error {
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	bots, err := s.Bots.ListBots(lctx)
	if err != nil {
		return err
	}

	want := make(map[string]string, len(bots))
	scheds := make(map[string]robfigcron.Schedule, len(bots))
	for _, b := range bots {
		expr := b.Schedule()
		if !b.IsActive || expr == "" {
			continue
		}
		sched, err := schedule.Parse(expr)
		if err != nil {
			logx.L().Warnw("schedule_invalid", "bot_id", b.ID, "expr", expr, "error", err)
			continue
		}
		want[b.ID] = expr
		scheds[b.ID] = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if expr, ok := want[id]; ok && expr == e.expr {
			continue
		}
		s.cron.Remove(e.id)
		delete(s.entries, id)
		logx.L().Infow("schedule_removed", "bot_id", id, "expr", e.expr)
	}
	for id, expr := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		botID := id
		eid := s.cron.Schedule(scheds[id], robfigcron.FuncJob(func() { s.fire(botID) }))
		s.entries[id] = entry{id: eid, expr: expr}
		logx.L().Infow("schedule_registered",
			"bot_id", id,
			"expr", expr,
			"next_run", scheds[id].Next(s.now().In(s.Loc)),
		)
	}
	metrics.SchedulerEntries.Set(float64(len(s.entries)))
	return nil
}

// Entries returns the registered expression per bot id.
func (s *Scheduler) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.expr
	}
	return out
}

func (s *Scheduler) fire(botID string) {
	metrics.SchedulerFiresTotal.Inc()
	job := model.NewTriggerJob(botID, bot.TriggerSchedule, s.now())
	payload, err := json.Marshal(job)
	if err != nil {
		logx.L().Errorw("job_marshal_error", "bot_id", botID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Pub.PublishJSON(ctx, payload); err != nil {
		logx.L().Errorw("publish_job_error", "bot_id", botID, "job_id", job.ID, "error", err)
		return
	}
	metrics.PublishedTriggersTotal.Inc()
	logx.L().Infow("schedule_fired", "bot_id", botID, "job_id", job.ID)
}
