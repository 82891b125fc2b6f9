package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"remindbot/internal/approval"
	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/guard"
	"remindbot/internal/notify"
	"remindbot/internal/reminder"
	"remindbot/internal/roles"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

// App wires the services together and owns their lifecycle.
type App struct {
	cfgm *config.Manager
	log  logx.Logger

	store   storage.Store
	adapter transport.Adapter
	clk     clock.Clock

	roles     *roles.Service
	guard     *guard.Service
	sched     *schedule.Service
	reminders *reminder.Service
	notify    *notify.Dispatcher
	approvals *approval.Service
	router    *bot.Router

	cron       *cron.Cron
	pruneEvery time.Duration

	// OnReady is invoked once startup (including the reminder reload)
	// completes and updates are being consumed.
	OnReady func()

	updates chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("init telegram: %w", err)
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
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

	guardWindow, err := config.ParseDurationOrDefault("guard.window", cfg.Guard.Window, 10*time.Second)
	if err != nil {
		return nil, err
	}
	pruneEvery, err := config.ParseDurationOrDefault("guard.prune_every", cfg.Guard.PruneEvery, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	roleSvc := roles.New(store, log.With(logx.String("comp", "roles")))
	guardSvc := guard.New(guard.Config{
		Limit:  cfg.Guard.Limit,
		Window: guardWindow,
	}, store, roleSvc, clk, log.With(logx.String("comp", "guard")))

	dispatcher := notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
	}, adapter, cfg.Telegram.ChannelID, log.With(logx.String("comp", "notify")))

	sched := schedule.New(clk, dispatcher.Broadcast, log.With(logx.String("comp", "schedule")))
	reminders := reminder.New(store, sched, clk, log.With(logx.String("comp", "reminder")))
	approvals := approval.New(store, reminders, roleSvc, dispatcher, clk, log.With(logx.String("comp", "approval")))

	handlers := bot.NewHandlers(reminders, approvals, roleSvc, guardSvc, dispatcher, clk,
		func() *time.Location { return cfgm.Get().DisplayLocation() },
		log.With(logx.String("comp", "bot")))
	router := bot.NewRouter(adapter, guardSvc, roleSvc, log.With(logx.String("comp", "router")))
	router.Register(handlers.Commands()...)

	return &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		store:      store,
		adapter:    adapter,
		clk:        clk,
		roles:      roleSvc,
		guard:      guardSvc,
		sched:      sched,
		reminders:  reminders,
		notify:     dispatcher,
		approvals:  approvals,
		router:     router,
		cron:       cron.New(),
		pruneEvery: pruneEvery,
		updates:    make(chan transport.Message, 128),
	}, nil
}

// Run starts the app and blocks until ctx is cancelled. Startup order
// matters: the superadmin seed and the timer reload happen before the
// adapter begins delivering updates.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgm.Get()

	if err := a.roles.EnsureSuperadmin(ctx, cfg.Telegram.SuperadminID); err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}

	a.sched.Start(ctx)
	restored, err := a.sched.Reload(ctx, a.store, a.clk.Now())
	if err != nil {
		return fmt.Errorf("reload reminders: %w", err)
	}
	a.log.Info("reminders restored", logx.Int("timers", restored))

	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", a.pruneEvery), func() {
		if n := a.guard.PruneIdle(); n > 0 {
			a.log.Debug("pruned idle guard windows", logx.Int("count", n))
		}
	}); err != nil {
		return fmt.Errorf("schedule guard janitor: %w", err)
	}
	a.cron.Start()

	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	go a.watchConfig(ctx)

	if a.OnReady != nil {
		a.OnReady()
	}
	a.log.Info("bot running")

	a.router.Run(ctx, a.updates)
	return a.shutdown()
}

func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig hot-applies the reloadable subset. Token, storage path and
// channel id changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	window, err := config.ParseDurationOrDefault("guard.window", cfg.Guard.Window, 10*time.Second)
	if err != nil {
		a.log.Warn("reload skipped guard config", logx.Err(err))
	} else {
		a.guard.Apply(guard.Config{Limit: cfg.Guard.Limit, Window: window})
	}
	a.log.ApplyLevel(cfg.Logging.Level)
	a.log.Info("config reloaded")
}

func (a *App) shutdown() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.adapter.Stop(stopCtx); err != nil {
		a.log.Warn("telegram stop", logx.Err(err))
	}
	<-a.cron.Stop().Done()
	a.sched.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("bot stopped")
	return a.log.Close()
}
