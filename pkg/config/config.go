package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type BackendConfig struct {
	URL         string
	Token       string
	SendTimeout time.Duration
}

type DispatchConfig struct {
	Concurrency int
	Rate        float64 // sends per second, 0 = unlimited
	Dedupe      bool
}

type APIConfig struct {
	Port     string
	DBDSN    string
	RMQURL   string
	Queue    string
	Backend  BackendConfig
	Dispatch DispatchConfig
}

type WorkerConfig struct {
	DBDSN    string
	RMQURL   string
	Queue    string
	Backend  BackendConfig
	Dispatch DispatchConfig
}

type SchedulerConfig struct {
	RMQURL       string
	Queue        string
	SyncInterval time.Duration
	TZ           string
	Backend      BackendConfig
}

var (
	API       APIConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
)

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("QUEUE", "bot_triggers")
	v.SetDefault("SEND_TIMEOUT", "15s")
	v.SetDefault("DISPATCH_CONCURRENCY", 1)
	v.SetDefault("DISPATCH_RATE", 0)
	v.SetDefault("DEDUPE_TARGETS", false)
	v.SetDefault("SCHED_SYNC_INTERVAL", "1m")
	v.SetDefault("SCHED_TZ", "Local")
	return v
}

type missingEnv string

func (m missingEnv) Error() string { return fmt.Sprintf("required env %s is not set", string(m)) }

func required(v *viper.Viper, k string, errs *[]error) string {
	s := v.GetString(k)
	if s == "" {
		*errs = append(*errs, missingEnv(k))
	}
	return s
}

func combine(errs []error) error { return multierr.Combine(errs...) }

func loadBackend(v *viper.Viper, errs *[]error) BackendConfig {
	b := BackendConfig{
		URL:         required(v, "BACKEND_URL", errs),
		Token:       v.GetString("BACKEND_TOKEN"),
		SendTimeout: v.GetDuration("SEND_TIMEOUT"),
	}
	if b.SendTimeout <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid SEND_TIMEOUT %q", v.GetString("SEND_TIMEOUT")))
	}
	return b
}

func loadDispatch(v *viper.Viper, errs *[]error) DispatchConfig {
	d := DispatchConfig{
		Concurrency: v.GetInt("DISPATCH_CONCURRENCY"),
		Rate:        v.GetFloat64("DISPATCH_RATE"),
		Dedupe:      v.GetBool("DEDUPE_TARGETS"),
	}
	if d.Concurrency < 1 {
		*errs = append(*errs, fmt.Errorf("invalid DISPATCH_CONCURRENCY %d", d.Concurrency))
	}
	if d.Rate < 0 {
		*errs = append(*errs, fmt.Errorf("invalid DISPATCH_RATE %v", d.Rate))
	}
	return d
}

func LoadAPI() (APIConfig, error) {
	v := newViper()
	var errs []error
	cfg := APIConfig{
		Port:   v.GetString("PORT"),
		DBDSN:  required(v, "DB_DSN", &errs),
		RMQURL: required(v, "RMQ_URL", &errs),
		Queue:  v.GetString("QUEUE"),
	}
	cfg.Backend = loadBackend(v, &errs)
	cfg.Dispatch = loadDispatch(v, &errs)
	return cfg, combine(errs)
}

func LoadWorker() (WorkerConfig, error) {
	v := newViper()
	var errs []error
	cfg := WorkerConfig{
		DBDSN:  required(v, "DB_DSN", &errs),
		RMQURL: required(v, "RMQ_URL", &errs),
		Queue:  v.GetString("QUEUE"),
	}
	cfg.Backend = loadBackend(v, &errs)
	cfg.Dispatch = loadDispatch(v, &errs)
	return cfg, combine(errs)
}

func LoadScheduler() (SchedulerConfig, error) {
	v := newViper()
	var errs []error
	cfg := SchedulerConfig{
		RMQURL:       required(v, "RMQ_URL", &errs),
		Queue:        v.GetString("QUEUE"),
		SyncInterval: v.GetDuration("SCHED_SYNC_INTERVAL"),
		TZ:           v.GetString("SCHED_TZ"),
	}
	if cfg.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid SCHED_SYNC_INTERVAL %q", v.GetString("SCHED_SYNC_INTERVAL")))
	}
	if _, err := time.LoadLocation(cfg.TZ); err != nil {
		errs = append(errs, fmt.Errorf("invalid SCHED_TZ: %w", err))
	}
	cfg.Backend = loadBackend(v, &errs)
	return cfg, combine(errs)
}

// LoadBackend reads only the backend settings; botctl needs nothing else.
func LoadBackend() (BackendConfig, error) {
	var errs []error
	b := loadBackend(newViper(), &errs)
	return b, combine(errs)
}

func MustLoadAPI() {
	cfg, err := LoadAPI()
	if err != nil {
		log.Fatal(err)
	}
	API = cfg
}

func MustLoadWorker() {
	cfg, err := LoadWorker()
	if err != nil {
		log.Fatal(err)
	}
	Worker = cfg
}

func MustLoadScheduler() {
	cfg, err := LoadScheduler()
	if err != nil {
		log.Fatal(err)
	}
	Scheduler = cfg
}
