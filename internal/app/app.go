// Package app wires the relay bot together: config, logging, storage, the
// user-account gateway, the dispatch scheduler and the operator bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaybot/internal/account"
	"relaybot/internal/auth"
	"relaybot/internal/bot"
	"relaybot/internal/config"
	"relaybot/internal/dialog"
	"relaybot/internal/dispatch"
	"relaybot/internal/eventbus"
	"relaybot/internal/gateway/mtproto"
	"relaybot/internal/observability/pprof"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/session"
	"relaybot/internal/storage"
	"relaybot/internal/task/engine"
	"relaybot/internal/task/scheduler"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	logx "relaybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    *storage.Store
	sessions *storage.SessionFile
	gw       *mtproto.Gateway

	adapter  *telegram.Adapter
	engine   *engine.Service
	sched    *scheduler.Service
	dispatch *dispatch.Scheduler
	bot      *bot.Bot
	debug    *pprof.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("info").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogConfig(cfg))
	logSvc.SetSender(ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	sessions := storage.NewSessionFile(cfg.Storage.SessionsPath, log.With(logx.String("comp", "sessions")))
	if err := sessions.Load(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	gw, err := mtproto.New(mapGatewayConfig(cfg), log.With(logx.String("comp", "gateway")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	accounts := account.NewRegistry(gw, store, sessions, log.With(logx.String("comp", "account")))

	eng := engine.New(mapTaskEngineConfig(cfg), log.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, eng, log.With(logx.String("comp", "scheduler")))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	exec := dispatch.NewExecutor(accounts, ad, ad.BotID(), log.With(logx.String("comp", "executor")), bus)
	jobs := dispatch.NewScheduler(dcfg, store, sched, exec, log.With(logx.String("comp", "dispatch")), bus)

	cb, err := mapCodebook(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	machine := auth.NewMachine(accounts, cb, log.With(logx.String("comp", "auth")))
	wizard := dialog.NewWizard(dialog.Config{
		BotID:    ad.BotID(),
		PageSize: cfg.Dialog.ChatsPerPage,
		Location: sched.Location,
	}, accounts, store, jobs, log.With(logx.String("comp", "dialog")))

	b := bot.New(bot.Config{
		AllowedUserIDs:   cfg.Telegram.AllowedUserIDs,
		SchedulesPerPage: cfg.Dialog.SchedulesPerPage,
		Location:         sched.Location,
	}, bot.Deps{
		Channel:  ad,
		Accounts: accounts,
		Auth:     machine,
		Wizard:   wizard,
		Store:    store,
		Jobs:     jobs,
		Sessions: session.NewStore(),
	}, log.With(logx.String("comp", "bot")))

	debug := pprof.New(mapDebugConfig(cfg), statusSource{sched, store}, log.With(logx.String("comp", "debug")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		sessions: sessions,
		gw:       gw,
		adapter:  ad,
		engine:   eng,
		sched:    sched,
		dispatch: jobs,
		bot:      b,
		debug:    debug,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapCodebook(cfg); err != nil {
			return err
		}
		_, err := mapDispatchConfig(cfg)
		return err
	})

	// The executor runs on the engine; the engine goes first.
	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	if err := a.dispatch.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("dispatch start: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})
	a.sup.Go0("bot.commands", func(c context.Context) {
		cctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(cctx, bot.Commands()); err != nil {
			a.log.Warn("menu commands not published", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.journal", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.journal(c, e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.apply(newCfg)
			}
		}
	})

	a.debug.Start(a.sup.Context())

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// apply pushes the hot-reloadable parts of cfg. Storage, gateway and
// scheduler settings need a restart.
func (a *App) apply(cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))
	a.bot.SetAllowed(cfg.Telegram.AllowedUserIDs)
	a.debug.Reconfigure(a.sup.Context(), mapDebugConfig(cfg))
	a.log.Info("config reloaded", logx.Int("allowed_users", len(cfg.Telegram.AllowedUserIDs)))
}

// journal records finished engine tasks in the run journal.
func (a *App) journal(ctx context.Context, e eventbus.Event) {
	if e.Type != eventbus.TypeJobFinished {
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		return
	}
	te, ok := e.Data.(engine.TaskEvent)
	if !ok {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := a.store.AppendRun(wctx, storage.RunRecord{Name: te.Name, StartedAt: te.Started, Took: te.Duration, Err: te.Error})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("run journal write failed", logx.String("task", te.Name), logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	// Bot workers and the journal writer may still touch storage.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("gateway", time.Second, func(context.Context) error { return a.gw.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// statusSource feeds the debug server from the scheduler and the run journal.
type statusSource struct {
	sched *scheduler.Service
	store *storage.Store
}

func (s statusSource) Snapshot() scheduler.Snapshot { return s.sched.Snapshot() }

func (s statusSource) RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	return s.store.RecentRuns(ctx, limit)
}
