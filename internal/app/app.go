// Package app wires the alert daemon together: config, logging,
// storage, the snapshot provider, the evaluation scheduler, the
// notifier, and the HTTP API.
package app

import (
	"context"
	"sync"
	"time"

	"pharmalert/internal/config"
	"pharmalert/internal/engine"
	"pharmalert/internal/eventbus"
	"pharmalert/internal/httpapi"
	"pharmalert/internal/notifier"
	"pharmalert/internal/scheduler"
	"pharmalert/internal/snapshot"
	"pharmalert/internal/storage"
	"pharmalert/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus      eventbus.Bus
	db       storage.Store
	provider *snapshot.SQLiteProvider
	store    *engine.Store
	sched    *scheduler.Service
	notif    *notifier.Service
	api      *httpapi.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	// Durable alert store (optional).
	var db storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		db = st
		log.Info("alert storage enabled", logx.String("driver", sc.Driver))
	}

	snapCfg, err := mapSnapshotConfig(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := snapshot.OpenSQLite(snapCfg, log.With(logx.String("comp", "snapshot")))
	if err != nil {
		return nil, err
	}

	store := engine.NewStore(db, log.With(logx.String("comp", "engine")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, provider, store, bus, log.With(logx.String("comp", "scheduler")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif, err := notifier.New(ncfg, bus, log.With(logx.String("comp", "notifier")))
	if err != nil {
		return nil, err
	}

	apiCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(apiCfg, store, sched, log.With(logx.String("comp", "api")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		logs:     logSvc,
		log:      log,
		bus:      bus,
		db:       db,
		provider: provider,
		store:    store,
		sched:    sched,
		notif:    notif,
		api:      api,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Restore persisted alerts before the first tick so read state and
	// tombstoned sale/system alerts survive the restart.
	if err := a.store.Load(runCtx); err != nil {
		a.log.Warn("loading persisted alerts failed; starting empty", logx.Err(err))
	}

	a.notif.Start(runCtx)
	if err := a.api.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		a.api.Stop(context.Background())
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	// Bus traffic at debug level for operational visibility.
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	a.log.Info("alert daemon started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	a.sched.Stop(ctx)
	a.api.Stop(ctx)
	a.notif.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.provider.Close(); err != nil {
		a.log.Warn("closing snapshot database failed", logx.Err(err))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing alert storage failed", logx.Err(err))
		}
	}

	a.log.Info("alert daemon stopped")
	_ = a.logs.Close()
}

// reloadLoop applies hot-reloadable config sections as they arrive.
// Storage and the HTTP bind address are fixed at startup; everything
// else (logging, engine thresholds, system events, notifier) is live.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))

	if schedCfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(schedCfg)
	}

	a.provider.SetEvents(mapSystemEvents(cfg))

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else if err := a.notif.Apply(ncfg); err != nil {
		a.log.Warn("applying notifier config failed; keeping previous", logx.Err(err))
	}

	a.log.Info("config reloaded", logx.Time("at", time.Now()))
}
