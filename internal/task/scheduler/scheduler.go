// Package scheduler runs named background jobs on cron or interval schedules.
//
// Runs of the same job never overlap: a trigger that fires while the previous
// run is still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/pkg/logx"
)

type Job func(ctx context.Context) error

type EntrySnapshot struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Next     time.Time `json:"next,omitzero"`
	Prev     time.Time `json:"prev,omitzero"`
	Runs     uint64    `json:"runs"`
	Failures uint64    `json:"failures"`
	LastErr  string    `json:"last_err,omitempty"`
	LastDur  string    `json:"last_dur,omitempty"`
}

type def struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	mu       sync.Mutex
	runs     uint64
	failures uint64
	lastErr  string
	lastDur  time.Duration
}

type Service struct {
	log logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	defs    map[string]*def
	started bool
}

func New(log logx.Logger, loc *time.Location) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	log = log.With(logx.String("comp", "scheduler"))
	cl := cronLogger{log: log}
	return &Service{
		log: log,
		c: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:  context.Background(),
		defs: map[string]*def{},
	}
}

// Add registers job under name, replacing any job with the same name.
// timeout <= 0 means the run is bounded only by Stop.
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	if job == nil {
		return fmt.Errorf("schedule %s: job is nil", name)
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	d := &def{name: name, spec: spec, timeout: timeout, job: job}
	id, err := s.c.AddFunc(spec.CronSpec(), func() { s.run(d) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	d.entryID = id
	s.defs[name] = d
	s.log.Info("schedule added", logx.String("name", name), logx.String("spec", spec.CronSpec()))
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	s.c.Remove(d.entryID)
	delete(s.defs, name)
	return true
}

func (s *Service) run(d *def) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}
	start := time.Now()
	err := d.job(ctx)
	dur := time.Since(start)

	d.mu.Lock()
	d.runs++
	d.lastDur = dur
	if err != nil {
		d.failures++
		d.lastErr = err.Error()
	} else {
		d.lastErr = ""
	}
	d.mu.Unlock()

	if err != nil {
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("dur", dur), logx.Err(err))
		return
	}
	s.log.Debug("scheduled job done", logx.String("name", d.name), logx.Duration("dur", dur))
}

// Start begins triggering. Job contexts derive from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering, cancels running jobs and waits for them up to ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.c.Stop()
	cancel()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Snapshot() []EntrySnapshot {
	s.mu.Lock()
	out := make([]EntrySnapshot, 0, len(s.defs))
	for _, d := range s.defs {
		e := s.c.Entry(d.entryID)
		d.mu.Lock()
		snap := EntrySnapshot{
			Name:     d.name,
			Spec:     d.spec.CronSpec(),
			Next:     e.Next,
			Prev:     e.Prev,
			Runs:     d.runs,
			Failures: d.failures,
			LastErr:  d.lastErr,
		}
		if d.runs > 0 {
			snap.LastDur = d.lastDur.String()
		}
		d.mu.Unlock()
		out = append(out, snap)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes cron's own logging into logx. Its info lines are noisy
// (one per trigger) so they go to debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debug("cron: "+msg, kvFields(kv)...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
