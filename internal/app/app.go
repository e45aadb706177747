// Package app wires configuration, logging, storage, the Telegram
// adapter, and the reminder engine into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	tgadapter "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const updateQueueSize = 128

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   *storage.SQLiteStore
	adapter *tgadapter.Adapter
	sched   *reminder.Scheduler
	svc     *reminder.Service
	router  *router.Router

	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", cfgPath, err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validate)

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := config.ParseDurationField("reminders.send_timeout", cfg.Reminders.SendTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapter, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	sched := reminder.NewScheduler(reminder.SchedulerConfig{
		Timezone:    cfg.Reminders.Timezone,
		SendTimeout: sendTimeout,
	}, store, adapter, log.With(logx.String("comp", "scheduler")))
	svc := reminder.NewService(store, sched, log.With(logx.String("comp", "reminders")))
	rt := router.New(adapter, svc, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		store:   store,
		adapter: adapter,
		sched:   sched,
		svc:     svc,
		router:  rt,
	}, nil
}

func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"reminders.send_timeout", cfg.Reminders.SendTimeout},
	} {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(cfg.Reminders.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.timezone: %w", err)
		}
	}
	return nil
}

// Start brings everything up. The order matters: the adapter must be able
// to deliver before LoadAll arms timers that may fire immediately after.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates := make(chan kit.Update, updateQueueSize)
	if err := a.adapter.Start(runCtx, updates); err != nil {
		cancel()
		return err
	}

	a.sched.Start()
	if _, err := a.sched.LoadAll(runCtx); err != nil {
		// Startup reload failing means storage is unusable; better to die
		// loudly than run with an empty registry over live records.
		cancel()
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	a.group = g
	g.Go(func() error { return a.router.Run(gctx, updates) })
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error { a.applyLoop(gctx); return nil })

	a.log.Info("remindbot started")
	return nil
}

// applyLoop re-applies hot-reloadable settings (logging only; the token
// and storage path require a restart).
func (a *App) applyLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	_ = a.adapter.Stop(ctx)
	if a.group != nil {
		_ = a.group.Wait()
	}
	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}
