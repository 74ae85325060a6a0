package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
	"github.com/Mutter0815/BotDispatch/pkg/model"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
)

const defaultMaxRetries = 3

type triggerAPI interface {
	Trigger(ctx context.Context, botID, trigger string) (bot.Summary, error)
}

type publisherAPI interface {
	PublishJSONWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error
}

type Worker struct {
	Bots       triggerAPI
	Pub        publisherAPI
	MaxRetries int
	Backoff    func(retries int) time.Duration
}

func New(svc *bot.Service, pub *rmq.Publisher) *Worker {
	return &Worker{Bots: svc, Pub: pub, MaxRetries: defaultMaxRetries, Backoff: backoffDelay}
}

func (w *Worker) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	logx.L().Infow("worker_started")
	for {
		select {
		case <-ctx.Done():
			logx.L().Infow("worker_stopping")
			return ctx.Err()

		case d, ok := <-msgs:
			if !ok {
				logx.L().Warnw("consumer_channel_closed")
				return nil
			}
			start := time.Now()
			metrics.WorkerJobsConsumed.Inc()
			w.handle(ctx, d)
			metrics.WorkerProcessDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// handle выполняет одну задачу запуска. Повтор только если ничего не
// отправлено и ошибка временная; начатую рассылку не повторяем, даже прерванную.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var job model.TriggerJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.BotID == "" {
		logx.L().Warnw("job_unmarshal_error", "message_id", d.MessageId, "error", err)
		_ = d.Ack(false)
		return
	}
	if job.Trigger == "" {
		job.Trigger = bot.TriggerSchedule
	}
	retries := headerRetries(d.Headers)
	fields := []any{
		"job_id", job.ID,
		"bot_id", job.BotID,
		"trigger", job.Trigger,
		"retries", retries,
	}

	sum, err := w.Bots.Trigger(ctx, job.BotID, job.Trigger)
	switch {
	case err == nil:
		logx.L().Infow("trigger_done", append(fields,
			"run_id", sum.RunID,
			"total", sum.Result.TotalTargets,
			"success", sum.Result.SuccessCount,
			"failed", sum.Result.FailureCount,
		)...)
		_ = d.Ack(false)
		return

	case sum.Attempted:
		logx.L().Warnw("trigger_interrupted", append(fields,
			"run_id", sum.RunID,
			"skipped", sum.Result.Skipped,
			"error", err,
		)...)
		_ = d.Ack(false)
		return

	case errors.Is(err, bot.ErrInactive):
		logx.L().Infow("trigger_skipped_inactive", fields...)
		_ = d.Ack(false)
		return

	case !bot.Transient(err):
		logx.L().Warnw("trigger_refused", append(fields, "reason", sum.Reason, "error", err)...)
		_ = d.Ack(false)
		return
	}

	if retries < w.maxRetries() {
		delay := w.backoff(retries + 1)
		metrics.WorkerJobRetries.Inc()
		logx.L().Infow("retry_requeue", append(fields, "delay", delay.String(), "error", err)...)
		if err := w.requeueMessage(ctx, d, retries+1, delay); err != nil {
			logx.L().Errorw("retry_publish_error", append(fields, "error", err)...)
			_ = d.Nack(false, true)
		}
		return
	}
	logx.L().Warnw("drop_after_retries", append(fields, "error", err)...)
	_ = d.Ack(false)
}

func (w *Worker) maxRetries() int {
	if w.MaxRetries > 0 {
		return w.MaxRetries
	}
	return defaultMaxRetries
}

func (w *Worker) backoff(retries int) time.Duration {
	if w.Backoff != nil {
		return w.Backoff(retries)
	}
	return backoffDelay(retries)
}

func (w *Worker) requeueMessage(ctx context.Context, d amqp.Delivery, retries int, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	headers := copyHeaders(d.Headers)
	setHeaderRetries(&headers, retries)

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Pub.PublishJSONWithHeaders(pubCtx, d.Body, headers); err != nil {
		return err
	}

	return d.Ack(false)
}

func headerRetries(h amqp.Table) int {
	if h == nil {
		return 0
	}
	if v, ok := h["x-retries"]; ok {
		switch t := v.(type) {
		case int32:
			return int(t)
		case int64:
			return int(t)
		case int:
			return t
		case uint8:
			return int(t)
		}
	}
	return 0
}

func setHeaderRetries(h *amqp.Table, n int) {
	if *h == nil {
		*h = amqp.Table{}
	}
	(*h)["x-retries"] = int32(n)
}

// backoffDelay: 1s, 2s, 4s, ... для повторов 1, 2, 3, ...
func backoffDelay(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	sec := math.Pow(2, float64(retries-1))
	return time.Duration(sec) * time.Second
}

func copyHeaders(h amqp.Table) amqp.Table {
	if h == nil {
		return amqp.Table{}
	}
	dup := make(amqp.Table, len(h))
	for k, v := range h {
		dup[k] = v
	}
	return dup
}
