// Package router turns transport updates into relay messages and runs them on
// a bounded worker pool.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/relay"
	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Handler is the relay engine as seen by the dispatcher.
type Handler interface {
	Handle(ctx context.Context, msg relay.Message, out relay.Outbox) (relay.Outcome, error)
}

type Config struct {
	Workers   int           // <= 0 means NumCPU (at least 2)
	QueueSize int           // <= 0 means 256
	Timeout   time.Duration // per message; <= 0 disables
}

type Request struct {
	Update  kit.Update
	Message relay.Message
	Chat    kit.ChatTarget
	ReqID   string
	Logger  logx.Logger

	// Outcome is filled in by the relay handler.
	Outcome relay.Outcome
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

type Stats struct {
	Handled uint64 `json:"handled"`
	Failed  uint64 `json:"failed"`
	Busy    uint64 `json:"busy"`
	Queued  int    `json:"queued"`
}

type Dispatcher struct {
	log     logx.Logger
	adapter kit.Adapter
	handler Handler
	cfg     Config

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()

	handled atomic.Uint64
	failed  atomic.Uint64
	busy    atomic.Uint64
}

func New(log logx.Logger, adapter kit.Adapter, handler Handler, cfg Config) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 2)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Dispatcher{
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		handler: handler,
		cfg:     cfg,
		jobs:    make(chan func(), cfg.QueueSize),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (d *Dispatcher) Supervisor() *rtsup.Supervisor {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return nil
	}
	return d.sup
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Handled: d.handled.Load(),
		Failed:  d.failed.Load(),
		Busy:    d.busy.Load(),
		Queued:  len(d.jobs),
	}
}

func (d *Dispatcher) setSupervisor(sup *rtsup.Supervisor, running bool) {
	d.runMu.Lock()
	d.sup = sup
	d.running = running
	d.runMu.Unlock()
}

// tryEnqueue never blocks and survives a closed queue.
func (d *Dispatcher) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case d.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed. Queued
// messages get a short window to drain before it returns.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		rtsup.WithCancelOnError(false),
	)
	d.setSupervisor(sup, true)
	d.log.Info("dispatcher started", logx.Int("workers", d.cfg.Workers), logx.Int("queue_cap", cap(d.jobs)))

	for i := 0; i < d.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("relay.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return d.work(c, idx)
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		// Mark as not running before closing so late enqueues fail softly.
		d.setSupervisor(sup, false)
		close(d.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.setSupervisor(nil, false)
		d.log.Info("dispatcher stopped", logx.Uint64("handled", d.handled.Load()))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.route(ctx, up)
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, idx int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-d.jobs:
			if !ok {
				return nil
			}
			// Middleware already recovers; keep the worker alive regardless.
			func() {
				defer func() {
					if r := recover(); r != nil {
						d.log.Error("panic in worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (d *Dispatcher) route(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	m := up.Message
	rid := uuid.NewString()
	req := &Request{
		Update:  up,
		Message: toRelayMessage(m),
		Chat:    kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		ReqID:   rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", m.ChatID),
			logx.Bool("text", m.HasText),
		),
	}

	final := Chain(
		d.handle,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(d.cfg.Timeout),
	)
	if !d.tryEnqueue(func() { _ = final(root, req) }) {
		d.busy.Add(1)
		req.Logger.Warn("dispatcher busy; message dropped")
	}
}

func (d *Dispatcher) handle(ctx context.Context, req *Request) error {
	out, err := d.handler.Handle(ctx, req.Message, outbox{adapter: d.adapter, thread: req.Chat.ThreadID})
	req.Outcome = out
	d.handled.Add(1)
	if err != nil {
		d.failed.Add(1)
	}
	return err
}

func toRelayMessage(m *kit.Message) relay.Message {
	out := relay.Message{ID: m.ID, ChatID: m.ChatID, Date: m.Date}
	if m.HasText {
		text := m.Text
		out.Text = &text
	}
	if u := m.From; u != nil {
		out.From = &relay.User{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Username:  u.Username,
		}
	}
	return out
}
