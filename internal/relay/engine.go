// Package relay decides what happens to each inbound message: throttle it,
// run a membership command, forward it to listeners, or answer it.
//
// The engine never talks to the transport while deciding. Process returns an
// Outcome; Deliver carries it out through an Outbox.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/samber/lo"

	"relaybot/internal/eventbus"
	"relaybot/internal/membership"
	"relaybot/pkg/logx"
)

type Deps struct {
	Listeners MembershipStore
	Ignored   MembershipStore
	Limiter   RateLimiter
	Bus       eventbus.Bus // optional
	Logger    logx.Logger
}

type Engine struct {
	listeners MembershipStore
	ignored   MembershipStore
	limiter   RateLimiter
	bus       eventbus.Bus
	log       logx.Logger

	settings atomic.Pointer[Settings]
}

func New(s Settings, d Deps) *Engine {
	if d.Listeners == nil || d.Ignored == nil || d.Limiter == nil {
		panic("relay: listeners, ignored and limiter are required")
	}
	e := &Engine{
		listeners: d.Listeners,
		ignored:   d.Ignored,
		limiter:   d.Limiter,
		bus:       d.Bus,
		log:       d.Logger.With(logx.String("comp", "relay")),
	}
	e.SetSettings(s)
	return e
}

// Settings returns a copy of the active settings.
func (e *Engine) Settings() Settings { return *e.settings.Load() }

// SetSettings swaps the reply table. Messages already being processed keep
// the settings they started with.
func (e *Engine) SetSettings(s Settings) {
	cp := s
	e.settings.Store(&cp)
}

// Handle processes msg and delivers the outcome.
func (e *Engine) Handle(ctx context.Context, msg Message, out Outbox) (Outcome, error) {
	o := e.Process(msg)
	return o, e.Deliver(ctx, msg, o, out)
}

// Process runs the decision for one message. Store mutations, persistence and
// rate window updates happen here; sending does not.
func (e *Engine) Process(msg Message) Outcome {
	s := e.settings.Load()
	sender := msg.ChatID

	if sc := s.SpamControl; sc != nil && e.limiter.ShouldThrottle(sender, msg.Date, sc.Delay) {
		e.publish(EventThrottled, Throttled{SenderID: sender, At: msg.Date})
		return Outcome{Action: ActionThrottled, Reply: lo.ToPtr(sc.DelayedMessage)}
	}

	if !msg.HasText() {
		return e.record(msg, Outcome{Action: ActionNonText, Reply: s.MessageNotTextError})
	}
	text := *msg.Text

	switch kind, arg := parseCommand(text); kind {
	case cmdStart:
		return Outcome{Action: ActionStart, Reply: lo.ToPtr(s.StartMessage)}
	case cmdIgnore:
		if !e.contains(e.listeners, sender) {
			return e.record(msg, Outcome{Action: ActionNotAllowed, Reply: lo.ToPtr(s.CommandNotAllowed)})
		}
		return e.toggleIgnored(s, msg, arg)
	case cmdListening:
		if strings.TrimSpace(arg) != s.ActivateCode {
			return e.record(msg, Outcome{Action: ActionNotAllowed, Reply: lo.ToPtr(s.CommandNotAllowed)})
		}
		return e.toggleListener(s, msg)
	}

	if e.contains(e.ignored, sender) {
		return e.record(msg, Outcome{Action: ActionSenderIgnored, Reply: s.AnswerAfterMessageIgnored})
	}

	var recipients []int64
	if err := e.listeners.View(func(set membership.Set) {
		recipients = lo.Filter(set.IDs(), func(id int64, _ int) bool { return id != sender })
	}); err != nil {
		e.log.Warn("listeners unreadable; forwarding to nobody", logx.Int64("chat", sender), logx.Err(err))
	}
	body := forwardText(msg, text)
	forwards := lo.Map(recipients, func(id int64, _ int) Delivery {
		return Delivery{ChatID: id, Text: body}
	})
	e.publish(EventForwarded, Forwarded{SenderID: sender, Recipients: len(forwards)})
	return e.record(msg, Outcome{Action: ActionForwarded, Forwards: forwards, Reply: s.AnswerAfterMessage})
}

func (e *Engine) toggleIgnored(s *Settings, msg Message, arg string) Outcome {
	target, err := parseChatID(arg)
	if err != nil {
		e.log.Debug("ignore: bad argument", logx.Int64("chat", msg.ChatID), logx.Err(err))
		return Outcome{Action: ActionIgnoreInvalid, Reply: lo.ToPtr(s.ErrorIgnore)}
	}

	added, err := e.toggle(e.ignored, target)
	if err != nil {
		e.log.Error("ignore: mutate failed", logx.Int64("target", target), logx.Err(err))
		return Outcome{Action: ActionIgnoreFailed, Reply: lo.ToPtr(s.ErrorIgnore)}
	}
	e.changed(StoreIgnored, e.ignored, target, msg.ChatID, added)

	reply := s.RemoveIgnore
	if added {
		reply = s.AddIgnore
	}
	return Outcome{Action: ActionIgnoreToggled, Reply: lo.ToPtr(reply)}
}

func (e *Engine) toggleListener(s *Settings, msg Message) Outcome {
	added, err := e.toggle(e.listeners, msg.ChatID)
	if err != nil {
		e.log.Error("listening: mutate failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
		return Outcome{Action: ActionListenFailed, Reply: lo.ToPtr(s.ErrorListener)}
	}
	e.changed(StoreListeners, e.listeners, msg.ChatID, msg.ChatID, added)

	reply := s.RemoveListener
	if added {
		reply = s.AddListener
	}
	return Outcome{Action: ActionListenToggled, Reply: lo.ToPtr(reply)}
}

func (e *Engine) toggle(store MembershipStore, id int64) (bool, error) {
	var added bool
	err := store.Mutate(func(set membership.Set) membership.Set {
		added = set.Toggle(id)
		return set
	})
	return added, err
}

// changed persists store after a successful toggle. Memory stays
// authoritative if the write fails.
func (e *Engine) changed(name string, store MembershipStore, target, actor int64, added bool) {
	persisted := true
	if err := store.Save(); err != nil {
		persisted = false
		e.log.Error("persist failed; keeping in-memory state",
			logx.String("store", name), logx.Err(err))
	}
	e.log.Info("membership changed",
		logx.String("store", name),
		logx.Int64("target", target),
		logx.Int64("actor", actor),
		logx.Bool("added", added),
	)
	e.publish(EventMembershipChanged, MembershipChange{
		Store:     name,
		TargetID:  target,
		ActorID:   actor,
		Added:     added,
		Persisted: persisted,
	})
}

// contains treats an unreadable store as not containing id.
func (e *Engine) contains(store MembershipStore, id int64) bool {
	var ok bool
	if err := store.View(func(set membership.Set) { ok = set.Contains(id) }); err != nil {
		e.log.Warn("store unreadable", logx.Err(err))
		return false
	}
	return ok
}

func (e *Engine) record(msg Message, o Outcome) Outcome {
	e.limiter.RecordAccepted(msg.ChatID, msg.Date)
	o.Recorded = true
	return o
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Deliver sends the forwards of o and then its reply. A failed send does not
// stop the rest; all failures are joined into the returned error.
func (e *Engine) Deliver(ctx context.Context, msg Message, o Outcome, out Outbox) error {
	var errs []error
	for _, d := range o.Forwards {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := out.SendText(ctx, d.ChatID, d.Text); err != nil {
			errs = append(errs, fmt.Errorf("forward to %d: %w", d.ChatID, err))
		}
	}
	if o.Reply != nil {
		if err := out.Reply(ctx, msg, *o.Reply); err != nil {
			errs = append(errs, fmt.Errorf("reply to %d: %w", msg.ChatID, err))
		}
	}
	return errors.Join(errs...)
}
