package app

import (
	"context"
	"fmt"

	"reaperd/internal/config"
	"reaperd/internal/confirm"
	"reaperd/internal/eventbus"
	"reaperd/internal/eventstore"
	"reaperd/internal/executor"
	"reaperd/internal/httpapi"
	"reaperd/internal/notifier"
	"reaperd/internal/proxmox"
	rtsup "reaperd/internal/runtime/supervisor"
	"reaperd/internal/scheduler"
	logx "reaperd/pkg/logx"
)

// App assembles and runs all services: store, transport, notifier, deletion
// engine, poll loop, management API and the config watcher.
type App struct {
	manager *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	bus    eventbus.Bus
	events *eventbus.Recorder
	store  eventstore.Store
	gate   *confirm.Gate
	notif  *notifier.Service
	sched  *scheduler.Service
	api    *httpapi.Service

	sup *rtsup.Supervisor
}

func New(configPath string) (*App, error) {
	manager := config.NewManager(configPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	logSvc, log := logx.New(buildLogging(cfg.Logging))
	manager.SetLogger(log.With(logx.String("svc", "config")))
	manager.SetValidator(func(ctx context.Context, c *config.Config) error {
		return validate(c)
	})

	storeCfg, err := buildStoreConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := eventstore.Open(storeCfg, log.With(logx.String("svc", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	adapter, err := buildTransport(cfg.Transport, log.With(logx.String("svc", "transport")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	events := eventbus.NewRecorder(bus, 128)

	notifCfg, err := buildNotifierConfig(cfg.Notifier)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(notifCfg, adapter, log.With(logx.String("svc", "notifier")), bus)

	pmxCfg, err := buildProxmoxConfig(cfg.Proxmox)
	if err != nil {
		return nil, err
	}
	pmx, err := proxmox.New(pmxCfg, log.With(logx.String("svc", "proxmox")))
	if err != nil {
		return nil, fmt.Errorf("proxmox client: %w", err)
	}
	exec := executor.NewProxmox(pmx, log.With(logx.String("svc", "executor")))

	gateCfg, err := buildGateConfig(cfg.Confirmation)
	if err != nil {
		return nil, err
	}
	gate := confirm.NewGate(gateCfg)

	engCfg, err := buildEngineConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	engine := scheduler.NewEngine(engCfg, store, gate, exec, notif, bus, log.With(logx.String("svc", "engine")))

	pollCfg, err := buildPollConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	sched := scheduler.NewService(pollCfg, engine, log.With(logx.String("svc", "scheduler")))

	apiCfg, err := buildAPIConfig(cfg.API)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(apiCfg, engine, pmx, events, notif, log.With(logx.String("svc", "api")))

	return &App{
		manager: manager,
		logSvc:  logSvc,
		log:     log,
		bus:     bus,
		events:  events,
		store:   store,
		gate:    gate,
		notif:   notif,
		sched:   sched,
		api:     api,
	}, nil
}

// Logger exposes the root logger for main.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("svc", "supervisor"))))

	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	a.api.Start(a.sup.Context())

	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.manager.Watch(ctx)
	})

	updates := a.manager.Subscribe(1)
	a.sup.Go0("config-apply", func(ctx context.Context) {
		defer a.manager.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(ctx, cfg)
			}
		}
	})

	a.log.Info("agent started")
	return nil
}

// applyConfig hot-reloads everything that can change without a restart.
// Storage, transport and the Proxmox endpoint are fixed for the process
// lifetime; changing those takes a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logSvc.Apply(buildLogging(cfg.Logging))

	if engCfg, err := buildEngineConfig(cfg.Scheduler); err == nil {
		a.sched.Engine().Apply(engCfg)
	}
	if pollCfg, err := buildPollConfig(cfg.Scheduler); err == nil {
		a.sched.Apply(pollCfg)
	}
	if gateCfg, err := buildGateConfig(cfg.Confirmation); err == nil {
		a.gate.Apply(gateCfg)
	}
	if notifCfg, err := buildNotifierConfig(cfg.Notifier); err == nil {
		a.notif.Apply(notifCfg)
	}
	if apiCfg, err := buildAPIConfig(cfg.API); err == nil {
		a.api.Reconfigure(ctx, apiCfg)
	}

	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	a.api.Stop(ctx)
	a.sched.Stop(ctx)
	a.notif.Stop(ctx)

	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	a.events.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}

	a.log.Info("agent stopped")
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return nil
}
