package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int   // telegram forum topic thread id (0 if none)
	Date     int64 // unix seconds
	Text     string
	HasText  bool // false for photos, stickers, locations, ...
	From     *User
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
