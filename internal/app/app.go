// Package app wires the relay engine to its stores, the Telegram transport
// and the operator surfaces, and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relaybot/internal/config"
	"relaybot/internal/dualstore"
	"relaybot/internal/eventbus"
	"relaybot/internal/membership"
	"relaybot/internal/observability/ops"
	"relaybot/internal/ratelimit"
	"relaybot/internal/relay"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/storage"
	"relaybot/internal/task/scheduler"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	"relaybot/internal/transport/telegram/router"
	"relaybot/pkg/logx"
)

type memberStore = dualstore.Store[membership.Set]

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	listeners *memberStore
	ignored   *memberStore
	limiter   *ratelimit.Limiter
	engine    *relay.Engine

	audit storage.Store

	adapter    *telegram.Adapter
	dispatcher *router.Dispatcher
	sched      *scheduler.Service
	ops        *ops.Service

	updates chan kit.Update
}

// NewApp loads the config and builds every component. Config errors are fatal
// here; unreadable store files are not. On error everything opened so far is
// closed again.
func NewApp(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(logConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	ac, err := adapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := dispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}

	listeners, ignored, err := openStores(cfg, root)
	if err != nil {
		return nil, err
	}
	var audit storage.Store
	defer func() {
		if err == nil {
			return
		}
		_ = listeners.Close()
		_ = ignored.Close()
		if audit != nil {
			_ = audit.Close()
		}
		_ = logSvc.Close()
	}()

	if audit, err = storage.Open(sc, root); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	bus := eventbus.New()
	limiter := ratelimit.New()
	engine := relay.New(settingsFromConfig(cfg), relay.Deps{
		Listeners: listeners,
		Ignored:   ignored,
		Limiter:   limiter,
		Bus:       bus,
		Logger:    root,
	})

	// Last: telebot calls getMe here.
	ad, err := telegram.New(ac, root)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		listeners:  listeners,
		ignored:    ignored,
		limiter:    limiter,
		engine:     engine,
		audit:      audit,
		adapter:    ad,
		dispatcher: router.New(root, ad, engine, dc),
		sched:      scheduler.New(root, time.Local),
		updates:    make(chan kit.Update, 256),
	}
	a.ops = ops.New(opsConfig(cfg), root, func() any { return a.Stats() }, audit)

	if strings.TrimSpace(cfg.Stores.Checkpoint) != "" {
		timeout, err := checkpointTimeout(cfg)
		if err != nil {
			return nil, err
		}
		if err := a.sched.Add("stores.checkpoint", cfg.Stores.Checkpoint, timeout, a.checkpoint); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// openStores opens both membership files and loads them. A failed load is
// logged and the store starts empty.
func openStores(cfg *config.Config, log logx.Logger) (listeners, ignored *memberStore, err error) {
	log = log.With(logx.String("comp", "stores"))
	listeners, err = dualstore.Open[membership.Set](relay.StoreListeners, cfg.Stores.ListenersPath, membership.Codec{})
	if err != nil {
		return nil, nil, err
	}
	ignored, err = dualstore.Open[membership.Set](relay.StoreIgnored, cfg.Stores.IgnoredPath, membership.Codec{})
	if err != nil {
		_ = listeners.Close()
		return nil, nil, err
	}
	for _, st := range []*memberStore{listeners, ignored} {
		if err := st.Load(); err != nil {
			log.Error("store load failed; starting empty", logx.String("store", st.Name()), logx.Err(err))
			continue
		}
		log.Info("store loaded", logx.String("store", st.Name()), logx.Int("ids", size(st)))
	}
	return listeners, ignored, nil
}

func size(st *memberStore) int {
	n := 0
	_ = st.View(func(s membership.Set) { n = s.Len() })
	return n
}

// checkpoint rewrites both store files from memory.
func (a *App) checkpoint(context.Context) error {
	return errors.Join(a.listeners.Save(), a.ignored.Save())
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

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

type Stats struct {
	Listeners      int                       `json:"listeners"`
	Ignored        int                       `json:"ignored"`
	TrackedSenders int                       `json:"tracked_senders"`
	Dispatch       router.Stats              `json:"dispatch"`
	Sent           uint64                    `json:"sent"`
	EventsDropped  uint64                    `json:"events_dropped"`
	Schedules      []scheduler.EntrySnapshot `json:"schedules"`
	Supervisors    map[string]rtsup.Snapshot `json:"supervisors"`
}

func (a *App) Stats() Stats {
	st := Stats{
		Listeners:      size(a.listeners),
		Ignored:        size(a.ignored),
		TrackedSenders: a.limiter.Len(),
		Dispatch:       a.dispatcher.Stats(),
		Sent:           a.adapter.Sent(),
		EventsDropped:  eventbus.Dropped(a.bus),
		Schedules:      a.sched.Snapshot(),
		Supervisors:    map[string]rtsup.Snapshot{},
	}
	for name, sup := range map[string]*rtsup.Supervisor{
		"app":               a.sup,
		"telegram.adapter":  a.adapter.Supervisor(),
		"telegram.dispatch": a.dispatcher.Supervisor(),
		"ops":               a.ops.Supervisor(),
	} {
		if sup != nil {
			st.Supervisors[name] = sup.Snapshot()
		}
	}
	return st
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("relay.dispatch", func(c context.Context) error {
		return a.dispatcher.DispatchLoop(c, a.updates)
	})

	if a.audit != nil {
		sink := storage.NewAuditSink(a.audit, a.log)
		a.sup.Go("audit.sink", func(c context.Context) error { return sink.Run(c, a.bus) })
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.sched.Start(a.sup.Context())
	if err := a.ops.Start(a.sup.Context()); err != nil {
		// Ops is optional; the relay keeps running without it.
		a.log.Error("ops not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		applied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = latest(sub, newCfg)
				a.applyConfig(applied, newCfg)
				applied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// latest drains queued reloads so a burst applies once.
func latest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cur
			}
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.Diff(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, section := range ch.RestartRequired {
		a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", section))
	}
	a.logs.Apply(logConfig(newCfg))
	a.engine.SetSettings(settingsFromConfig(newCfg))
	a.log.Info("config reloaded",
		logx.String("live", strings.Join(ch.Live, ",")),
		logx.String("restart_required", strings.Join(ch.RestartRequired, ",")),
	)
}

func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	notifySystemd(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so loops start unwinding while the steps below run.
	a.sup.Cancel()

	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, a.sched.Stop)
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 4*time.Second, a.sup.Wait)
	a.step(ctx, "stores", 2*time.Second, func(c context.Context) error {
		err := a.checkpoint(c)
		return errors.Join(err, a.listeners.Close(), a.ignored.Close())
	})
	a.step(ctx, "audit", time.Second, func(context.Context) error {
		if a.audit != nil {
			return a.audit.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by limit and the caller's deadline, so a
// stuck component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

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
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
