// Package app wires the bot together: config, logging, storage, the
// reminder pipeline and the Telegram transport, with start/stop lifecycle
// and config hot reload.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/config"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/services/events"
	"remindbot/internal/services/fanout"
	"remindbot/internal/services/janitor"
	"remindbot/internal/services/reminder"
	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

// updateQueueSize buffers the inbound update stream between the poller and
// the router loop.
const updateQueueSize = 128

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    storage.Store
	fanout   *fanout.Service
	reminder *reminder.Service
	events   *events.Service
	janitor  *janitor.Service
	sessions *session.Store
	adapter  transport.Adapter
	router   *router.Router

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, rootLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	mgr.SetLogger(rootLog.With(logx.String("comp", "config")))
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	loc := cfg.Location()

	storeCfg, err := storageConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storeCfg, rootLog.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		rootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	fan := fanout.New(fanoutConfig(cfg, loc), store, ad, rootLog.With(logx.String("comp", "fanout")))
	rem := reminder.New(store, fan, rootLog.With(logx.String("comp", "reminder")))
	evs := events.New(store, rem, rootLog.With(logx.String("comp", "events")))

	sessions := session.New(session.Config{}, rootLog.With(logx.String("comp", "session")))
	rt := router.New(router.Config{AdminIDs: cfg.Telegram.AdminIDs, Timezone: loc},
		evs, sessions, ad, rootLog.With(logx.String("comp", "router")))

	retention, err := config.ParseDuration("janitor.retention", cfg.Janitor.Retention, 7*24*time.Hour)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	var jan *janitor.Service
	if cfg.Janitor.Enabled {
		jan = janitor.New(janitor.Config{
			Schedule:  cfg.Janitor.Schedule,
			Retention: retention,
			Timezone:  loc,
		}, store, rootLog.With(logx.String("comp", "janitor")))
	}

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      rootLog.With(logx.String("comp", "app")),
		store:    store,
		fanout:   fan,
		reminder: rem,
		events:   evs,
		janitor:  jan,
		sessions: sessions,
		adapter:  ad,
		router:   rt,
		updates:  make(chan transport.Update, updateQueueSize),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)

	a.sessions.Start(ctx)
	a.reminder.Start(ctx)
	if err := a.events.Restore(ctx, time.Now()); err != nil {
		return fmt.Errorf("restoring reminders: %w", err)
	}
	if a.janitor != nil {
		if err := a.janitor.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("starting telegram adapter: %w", err)
	}

	a.sup.Go0("router", func(c context.Context) {
		a.router.Run(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})

	cfgCh := a.cfgMgr.Subscribe(1)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgMgr.Unsubscribe(cfgCh)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("started")
	return nil
}

// applyConfig handles hot reload. Only logging and fanout settings apply at
// runtime; token, admin list and storage changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	a.fanout.Apply(fanoutConfig(cfg, cfg.Location()))
	a.log.Info("config applied",
		logx.String("level", cfg.Logging.Level),
		logx.Int("fanout_workers", cfg.Fanout.Workers))
}

func (a *App) Stop(ctx context.Context) error {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err == nil && sent {
		a.log.Debug("systemd notified stopping")
	}

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}
	if a.janitor != nil {
		a.janitor.Stop(ctx)
	}
	a.reminder.Stop(ctx)
	a.sessions.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func fanoutConfig(cfg *config.Config, loc *time.Location) fanout.Config {
	return fanout.Config{
		Workers:    cfg.Fanout.Workers,
		QueueSize:  cfg.Fanout.QueueSize,
		RatePerSec: cfg.Fanout.RatePerSec,
		Timezone:   loc,
	}
}
