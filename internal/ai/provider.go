package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Provider returns the full reply for a conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
