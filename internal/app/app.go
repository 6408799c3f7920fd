package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wirdbot/internal/admin"
	"wirdbot/internal/config"
	"wirdbot/internal/content"
	"wirdbot/internal/conversation"
	"wirdbot/internal/eventbus"
	"wirdbot/internal/i18n"
	"wirdbot/internal/membership"
	"wirdbot/internal/metrics"
	"wirdbot/internal/model"
	rtsup "wirdbot/internal/runtime/supervisor"
	"wirdbot/internal/scheduler"
	"wirdbot/internal/session"
	"wirdbot/internal/storage"
	kit "wirdbot/internal/transport"
	telegram "wirdbot/internal/transport/telegram/adapter"
	logx "wirdbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	recent *eventbus.Recent
	store  storage.Store

	adapter  *telegram.Adapter
	sessions *session.Manager
	sched    *scheduler.Service
	admin    *admin.Service
	disp     *dispatcher

	updates chan kit.Update
}

func NewApp(cfgPath, version string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tcfg, logx.NewConsole("INFO"))
	if err != nil {
		return nil, err
	}

	// Bootstrap with the chat sink off, set its target, then apply the final
	// config so Apply does not warn about a missing target.
	logCfg := mapLogConfig(cfg)
	boot := logCfg
	boot.Chat.Enabled = false
	logSvc, root := logx.New(boot, ad)
	if chatID, _ := config.ParseGroupLog(cfg.Telegram.GroupLog); chatID != 0 {
		logSvc.SetChatTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log := root.Comp("app")

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.Comp("storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	catalog, err := i18n.Load()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pages := content.NewDir(cfg.Content.PagesDir)
	if cfg.Scheduler.Enabled {
		if n := pages.Count(model.MaxPage); n < model.MaxPage {
			log.Warn("page images incomplete", logx.String("dir", pages.Root), logx.Int("found", n), logx.Int("want", model.MaxPage))
		}
	}

	bus := eventbus.New()
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, store, ad, pages, catalog, root, bus)

	members := membership.New(store, ad, root)
	engine := conversation.NewEngine(store, members, sched, catalog, root)

	sessCfg, err := mapSessionConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sessions := session.NewManager(sessCfg, engine.Handler(ad), root,
		session.WithErrorNotifier(engine.ErrorNotifier(ad)),
	)
	metrics.RegisterSessions(func() (int, int, int, int) {
		st := sessions.Stats()
		return st.Sessions, st.WithState, st.Processing, st.Queued
	})

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		recent:   eventbus.NewRecent(50),
		store:    store,
		adapter:  ad,
		sessions: sessions,
		sched:    sched,
		updates:  make(chan kit.Update, 256),
	}
	a.disp = &dispatcher{sessions: sessions, groups: store, bus: bus, log: root.Comp("dispatch")}

	adminCfg, err := mapAdminConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.admin = admin.New(adminCfg, admin.Deps{
		Store:      store,
		Scheduler:  sched,
		Sessions:   sessions,
		Events:     a.recent,
		Supervisor: a.supervisorSnapshot,
		Version:    version,
	}, root)
	return a, nil
}

func (a *App) supervisorSnapshot() rtsup.Snapshot {
	if a.sup == nil {
		return rtsup.Snapshot{}
	}
	return a.sup.Snapshot()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.Comp("config"))
	a.cfgm.SetValidator(config.Validate)
	run := a.sup.Context()

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go0("sessions.sweep", a.sessions.Run)
	if err := a.sched.Start(run); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.admin.Start(run)

	a.sup.Go("updates.dispatch", func(c context.Context) error {
		return a.disp.run(c, a.updates)
	})
	a.sup.Go0("eventbus.recent", func(c context.Context) {
		a.recent.Run(c, a.bus, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig pushes hot-reloadable sections into running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(rr, ",")))
	}

	if chatID, err := config.ParseGroupLog(next.Telegram.GroupLog); err == nil {
		a.logs.SetChatTarget(chatID, next.Logging.Telegram.ThreadID)
	}
	a.logs.Apply(mapLogConfig(next))
	a.adapter.SetSendRate(next.Telegram.SendRatePerSec, next.Telegram.SendBurst)

	if sc, err := mapSessionConfig(next); err != nil {
		a.log.Warn("invalid session config; keeping previous", logx.Err(err))
	} else {
		a.sessions.Apply(sc)
	}

	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.sched.Enabled()
		actx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.sched.Apply(actx, sc); err != nil {
			a.log.Warn("scheduler apply failed", logx.Err(err))
		}
		cancel()
		switch {
		case wasEnabled && !sc.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
			a.log.Info("scheduler disabled via config")
		case !wasEnabled && sc.Enabled:
			if err := a.sched.Start(ctx); err != nil {
				a.log.Warn("scheduler start failed", logx.Err(err))
			} else {
				a.log.Info("scheduler enabled via config")
			}
		}
	}

	if ac, err := mapAdminConfig(next); err != nil {
		a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
	} else {
		a.admin.Reconfigure(ctx, ac)
	}

	eventbus.Publish(a.bus, eventbus.TypeConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
