package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/Mutter0815/BotDispatch/internal/app"
	"github.com/Mutter0815/BotDispatch/internal/store"
	"github.com/Mutter0815/BotDispatch/pkg/config"
	"github.com/Mutter0815/BotDispatch/pkg/db"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
	"github.com/Mutter0815/BotDispatch/services/dispatch-worker/worker"
)

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadWorker()
	cfg := config.Worker

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer sqlDB.Close()

	cons, err := rmq.NewConsumer(cfg.RMQURL, cfg.Queue, 1)
	if err != nil {
		logx.L().Fatalw("rmq_consumer_error", "error", err)
	}
	defer cons.Close()

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_publisher_error", "error", err)
	}
	defer pub.Close()

	msgs, err := cons.Consume()
	if err != nil {
		logx.L().Fatalw("rmq_consume_error", "queue", cons.Queue, "error", err)
	}

	svc := app.NewBotService(cfg.Backend, cfg.Dispatch, store.New(sqlDB))
	w := worker.New(svc, pub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logx.L().Infow("worker_consuming", "queue", cons.Queue)
	if err := w.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		logx.L().Errorw("worker_error", "error", err)
	}
	logx.L().Infow("dispatch-worker stopped")
}
