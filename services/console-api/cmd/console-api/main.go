package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mutter0815/BotDispatch/internal/app"
	"github.com/Mutter0815/BotDispatch/internal/store"
	"github.com/Mutter0815/BotDispatch/pkg/config"
	"github.com/Mutter0815/BotDispatch/pkg/db"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
	"github.com/Mutter0815/BotDispatch/pkg/rmq"
	"github.com/Mutter0815/BotDispatch/services/console-api/server"
)

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadAPI()
	cfg := config.API

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		} else {
			logx.L().Infow("db_closed")
		}
	}()

	st := store.New(sqlDB)
	migCtx, migCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.Migrate(migCtx); err != nil {
		migCancel()
		logx.L().Fatalw("db_migrate_error", "error", err)
	}
	migCancel()

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_init_error", "error", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logx.L().Warnw("rmq_publisher_close_error", "error", err)
		} else {
			logx.L().Infow("rmq_publisher_closed")
		}
	}()

	svc := app.NewBotService(cfg.Backend, cfg.Dispatch, st)
	h := server.NewHandlers(st, pub, svc, time.Local)
	srv := server.NewHTTPServer(":"+cfg.Port, h)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	// sends in flight finish on their own timeout, so allow for one
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.Backend.SendTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	} else {
		logx.L().Infow("server_shutdown_success")
	}

	logx.L().Infow("console-api stopped gracefully")
}
