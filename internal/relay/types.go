//go:generate go run go.uber.org/mock/mockgen -source=types.go -destination=mocks/mock_relay.go -package=mocks

package relay

import (
	"context"

	"relaybot/internal/membership"
)

// User is the optional sender info attached to an inbound message.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// Message is one inbound message. Text is nil for non-text messages
// (photos, stickers, locations, ...).
type Message struct {
	ID     int
	ChatID int64
	Date   int64 // unix seconds, as stamped by the transport
	Text   *string
	From   *User
}

func (m Message) HasText() bool { return m.Text != nil }

// Outbox is the transport side of the engine. Both calls may block and fail
// independently of each other.
type Outbox interface {
	SendText(ctx context.Context, chatID int64, text string) error
	Reply(ctx context.Context, to Message, text string) error
}

// MembershipStore is the subset of dualstore.Store[membership.Set] the engine needs.
type MembershipStore interface {
	View(fn func(s membership.Set)) error
	Mutate(fn func(s membership.Set) membership.Set) error
	Save() error
}

type RateLimiter interface {
	ShouldThrottle(sender, at, window int64) bool
	RecordAccepted(sender, at int64)
}

// Settings is the immutable reply table and policy the engine runs with.
// Optional replies are nil when not configured.
type Settings struct {
	StartMessage      string
	CommandNotAllowed string

	AddIgnore    string
	RemoveIgnore string
	ErrorIgnore  string

	AddListener    string
	RemoveListener string
	ErrorListener  string

	// ActivateCode guards /listening; the trimmed argument must equal it.
	ActivateCode string

	MessageNotTextError       *string
	AnswerAfterMessage        *string
	AnswerAfterMessageIgnored *string

	SpamControl *SpamControl
}

type SpamControl struct {
	Delay          int64 // seconds
	DelayedMessage string
}

type Action string

const (
	ActionThrottled     Action = "throttled"
	ActionStart         Action = "start"
	ActionIgnoreToggled Action = "ignore_toggled"
	ActionIgnoreInvalid Action = "ignore_invalid"
	ActionIgnoreFailed  Action = "ignore_failed"
	ActionListenToggled Action = "listening_toggled"
	ActionListenFailed  Action = "listening_failed"
	ActionNotAllowed    Action = "not_allowed"
	ActionForwarded     Action = "forwarded"
	ActionSenderIgnored Action = "sender_ignored"
	ActionNonText       Action = "non_text"
)

// Delivery is one forward to a listener.
type Delivery struct {
	ChatID int64
	Text   string
}

// Outcome is what the engine decided for one message.
type Outcome struct {
	Action   Action
	Forwards []Delivery
	Reply    *string
	// Recorded is true when the message refreshed the sender's rate window.
	Recorded bool
}

// Event types published on the bus.
const (
	EventMembershipChanged = "relay.membership_changed"
	EventThrottled         = "relay.throttled"
	EventForwarded         = "relay.forwarded"
)

const (
	StoreListeners = "listeners"
	StoreIgnored   = "ignored"
)

type MembershipChange struct {
	Store    string
	TargetID int64
	ActorID  int64
	Added    bool
	// Persisted is false when the mutation stuck in memory but Save failed.
	Persisted bool
}

type Forwarded struct {
	SenderID   int64
	Recipients int
}

type Throttled struct {
	SenderID int64
	At       int64
}
