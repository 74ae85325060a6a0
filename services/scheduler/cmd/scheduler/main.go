package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mutter0815/BotDispatch/internal/app"
	"github.com/Mutter0815/BotDispatch/pkg/config"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
	"github.com/Mutter0815/BotDispatch/services/scheduler/scheduler"
)

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadScheduler()
	cfg := config.Scheduler

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logx.L().Fatalw("tz_load_error", "tz", cfg.TZ, "error", err)
	}

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_init_error", "error", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logx.L().Warnw("rmq_publisher_close_error", "error", err)
		}
	}()

	s := scheduler.New(app.NewBackend(cfg.Backend), pub, cfg.SyncInterval, loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.L().Errorw("scheduler_error", "error", err)
	}
	logx.L().Infow("scheduler stopped")
}
