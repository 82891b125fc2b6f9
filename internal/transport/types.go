package transport

import "context"

// Message is a normalized inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget addresses an outbound send: the broadcast channel or a user DM.
type ChatTarget struct {
	ChatID int64
}

// User addresses a direct message to a specific user id.
func User(id int64) ChatTarget { return ChatTarget{ChatID: id} }

// Adapter is the transport collaborator. The core never talks to Telegram
// directly; tests substitute a fake.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string) error
}
