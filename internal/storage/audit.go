package storage

import (
	"context"
	"time"

	"relaybot/internal/eventbus"
	"relaybot/internal/relay"
	"relaybot/pkg/logx"
)

// AuditSink copies relay membership events into a Store.
type AuditSink struct {
	store   Store
	log     logx.Logger
	timeout time.Duration
}

func NewAuditSink(store Store, log logx.Logger) *AuditSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AuditSink{store: store, log: log.With(logx.String("comp", "audit")), timeout: 2 * time.Second}
}

// Run subscribes to bus and writes every membership change until ctx is
// done. A failed append is logged and skipped.
func (a *AuditSink) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			a.handle(ctx, ev)
		}
	}
}

func (a *AuditSink) handle(ctx context.Context, ev eventbus.Event) {
	if ev.Type != relay.EventMembershipChanged {
		return
	}
	mc, ok := ev.Data.(relay.MembershipChange)
	if !ok {
		return
	}
	e := AuditEntry{
		At:        ev.Time,
		Store:     mc.Store,
		TargetID:  mc.TargetID,
		ActorID:   mc.ActorID,
		Added:     mc.Added,
		Persisted: mc.Persisted,
	}
	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.store.AppendAudit(actx, e); err != nil {
		a.log.Warn("audit append failed", logx.String("store", e.Store), logx.Int64("target", e.TargetID), logx.Err(err))
	}
}
