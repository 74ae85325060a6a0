// Package app assembles the bot service from configuration. Every process
// that sends messages builds it the same way.
package app

import (
	"time"

	"github.com/Mutter0815/BotDispatch/internal/backend"
	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/dispatch"
	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/config"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
)

// NewBackend returns a client whose HTTP timeout sits above the per-send
// timeout, so a slow send is reported by the dispatcher.
func NewBackend(b config.BackendConfig) *backend.Client {
	return backend.New(b.URL, b.Token, b.SendTimeout+5*time.Second)
}

func NewDispatcher(s dispatch.Sender, b config.BackendConfig, d config.DispatchConfig) *dispatch.Dispatcher {
	disp := dispatch.New(s).WithRate(d.Rate)
	disp.Concurrency = d.Concurrency
	disp.SendTimeout = b.SendTimeout
	disp.Logger = logx.L()
	return disp
}

// NewBotService wires one backend client as bot store, group lookup and
// sender. j may be nil when no journal is available.
func NewBotService(b config.BackendConfig, d config.DispatchConfig, j bot.Journal) *bot.Service {
	c := NewBackend(b)
	return &bot.Service{
		Bots:       c,
		Resolver:   &target.Resolver{Groups: c, Dedupe: d.Dedupe},
		Dispatcher: NewDispatcher(c, b, d),
		Journal:    j,
		Logger:     logx.L(),
	}
}
