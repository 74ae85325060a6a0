package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/console"
	"github.com/Mutter0815/BotDispatch/internal/schedule"
	"github.com/Mutter0815/BotDispatch/internal/store"
	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
	"github.com/Mutter0815/BotDispatch/pkg/model"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
)

type storeAPI interface {
	GetRun(ctx context.Context, id int64) (store.RunRow, error)
	GetRunStats(ctx context.Context, id int64) (store.RunStats, error)
	ListFailures(ctx context.Context, runID int64) ([]store.RecipientRow, error)
	ListRuns(ctx context.Context, botID string, limit, offset int) ([]store.RunRow, error)
}

type publisherAPI interface {
	PublishJSON(ctx context.Context, body []byte) error
}

type resolverAPI interface {
	Resolve(ctx context.Context, l target.List) ([]string, error)
}

type senderAPI interface {
	SendNow(ctx context.Context, account string, targets target.List, body string) (bot.Summary, error)
}

type storeAdapter struct{ *store.Store }
type publisherAdapter struct{ *rmq.Publisher }

type Handlers struct {
	Store    storeAPI
	Pub      publisherAPI
	Resolver resolverAPI
	Bots     senderAPI
	// Loc is used for next-run previews.
	Loc *time.Location
	Now func() time.Time
}

func NewHandlers(s *store.Store, pub *rmq.Publisher, svc *bot.Service, loc *time.Location) *Handlers {
	return &Handlers{
		Store:    &storeAdapter{s},
		Pub:      &publisherAdapter{pub},
		Resolver: svc.Resolver,
		Bots:     svc,
		Loc:      loc,
	}
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) loc() *time.Location {
	if h.Loc != nil {
		return h.Loc
	}
	return time.Local
}

func (h *Handlers) nextRun(expr string) *time.Time {
	if expr == "" {
		return nil
	}
	t, err := schedule.NextRun(expr, h.now(), h.loc())
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// BuildExpression turns the schedule form into the expression to store.
func (h *Handlers) BuildExpression(c *gin.Context) {
	var req console.ScheduleExpressionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spec := schedule.Spec{Kind: schedule.Kind(req.Kind), Time: schedule.DefaultTime, Weekdays: req.Weekdays}
	if req.Time != "" {
		t, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		spec.Time = t
	}

	expr, err := schedule.Apply(req.Original, spec)
	if err == nil && spec.Kind == schedule.KindCustom {
		// a custom schedule can only be carried over, never built here
		if expr == "" {
			err = schedule.ErrNotEditable
		} else {
			err = schedule.ValidateExpression(expr)
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, console.ScheduleExpressionResp{
		Expression:  expr,
		Description: schedule.Describe(expr),
		NextRun:     h.nextRun(expr),
	})
}

// ReadSpec is the reverse direction, used to prefill the form.
func (h *Handlers) ReadSpec(c *gin.Context) {
	expr := c.Query("expr")
	spec := schedule.FromExpression(expr)
	days := spec.Weekdays
	if days == nil {
		days = []int{}
	}
	c.JSON(http.StatusOK, console.ScheduleSpecResp{
		Kind:        string(spec.Kind),
		Time:        spec.Time.String(),
		Weekdays:    days,
		Editable:    spec.Editable(),
		Description: schedule.Describe(expr),
		NextRun:     h.nextRun(expr),
	})
}

func targetsOf(tokens []string, text string) target.List {
	l := target.FromTokens(tokens)
	return append(l, target.Parse(text)...)
}

// refusal writes 422 for configuration problems that stop a send before
// anything goes out. It reports false for other errors.
func refusal(c *gin.Context, err error) bool {
	var rerr *target.ResolutionError
	switch {
	case errors.As(err, &rerr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         err.Error(),
			"reason":        bot.ReasonResolutionFailed,
			"failed_groups": rerr.Groups(),
		})
		return true
	case errors.Is(err, target.ErrNoRecipients):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "reason": bot.ReasonNoRecipients})
		return true
	}
	return false
}

func (h *Handlers) ResolveTargets(c *gin.Context) {
	var req console.ResolveTargetsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	addrs, err := h.Resolver.Resolve(ctx, targetsOf(req.Targets, req.Text))
	if err != nil {
		if refusal(c, err) {
			return
		}
		logx.L().Errorw("resolve_targets_error", "rid", requestID(c), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, console.ResolveTargetsResp{Addresses: addrs, Count: len(addrs)})
}

// Dispatch is the synchronous manual send. A closed client connection
// cancels the remaining recipients; the run is journaled either way.
func (h *Handlers) Dispatch(c *gin.Context) {
	var req console.DispatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sum, err := h.Bots.SendNow(c.Request.Context(), req.Account, targetsOf(req.Targets, req.Text), req.Message)
	if err != nil && !sum.Attempted {
		if refusal(c, err) {
			return
		}
		logx.L().Errorw("dispatch_error", "rid", requestID(c), "account", req.Account, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
		return
	}
	if err != nil {
		logx.L().Warnw("dispatch_interrupted", "rid", requestID(c), "account", req.Account, "error", err)
	}
	c.JSON(http.StatusOK, sum)
}

// TriggerBot queues a manual run of a stored bot for the dispatch worker.
func (h *Handlers) TriggerBot(c *gin.Context) {
	botID := c.Param("id")
	job := model.NewTriggerJob(botID, bot.TriggerManual, h.now())

	payload, err := json.Marshal(job)
	if err != nil {
		logx.L().Errorw("job_marshal_error", "bot_id", botID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.Pub.PublishJSON(ctx, payload); err != nil {
		logx.L().Errorw("publish_job_error", "bot_id", botID, "job_id", job.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "queue unavailable"})
		return
	}
	metrics.PublishedTriggersTotal.Inc()
	logx.L().Infow("trigger_queued", "rid", requestID(c), "bot_id", botID, "job_id", job.ID)

	c.JSON(http.StatusAccepted, console.TriggerResp{JobID: job.ID, BotID: botID})
}

func (h *Handlers) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Store.ListRuns(ctx, c.Query("bot_id"), limit, offset)
	if err != nil {
		logx.L().Errorw("list_runs_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list error"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) GetRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	run, err := h.Store.GetRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		logx.L().Errorw("get_run_error", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "run error"})
		return
	}

	stats, err := h.Store.GetRunStats(ctx, id)
	if err != nil {
		logx.L().Errorw("get_run_stats_error", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats error"})
		return
	}
	failures, err := h.Store.ListFailures(ctx, id)
	if err != nil {
		logx.L().Errorw("list_failures_error", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats error"})
		return
	}
	if failures == nil {
		failures = []store.RecipientRow{}
	}

	c.JSON(http.StatusOK, console.RunDetails{RunRow: run, Stats: stats, Failures: failures})
}
