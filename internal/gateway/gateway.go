package gateway

import "context"

// Notifier delivers run summaries to a chat channel (Telegram, Discord, etc.)
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

// CommandHandler answers a chat command such as "/status" with reply text.
type CommandHandler func(ctx context.Context, command string) string
