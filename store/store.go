// Package store keeps the conversation messages of a chat in process memory.
package store

import (
	"context"

	"github.com/effective-security/mcpchat/pkg/llms"
)

// MessageStore keeps messages keyed by the chat ID of the context.
type MessageStore interface {
	// Messages returns a copy of the messages of the chat.
	Messages(ctx context.Context) []llms.Message
	// Add appends the messages to the chat.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the messages of the chat.
	Reset(ctx context.Context) error
}
