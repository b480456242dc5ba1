package router

import (
	"context"

	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
)

// outbox sends relay output through the adapter. Replies stay in the forum
// thread the message came from.
type outbox struct {
	adapter kit.Adapter
	thread  int
}

var _ relay.Outbox = outbox{}

func (o outbox) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := o.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (o outbox) Reply(ctx context.Context, to relay.Message, text string) error {
	_, err := o.adapter.SendText(ctx, kit.ChatTarget{ChatID: to.ChatID, ThreadID: o.thread}, text, &kit.SendOptions{DisablePreview: true})
	return err
}
