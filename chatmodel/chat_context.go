package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ErrInvalidChatContext is returned when the context has no ChatContext.
var ErrInvalidChatContext = errors.New("invalid chat context")

// ChatContext is the context of one chat session.
// The chat ID identifies the conversation, the run ID identifies one process run.
type ChatContext interface {
	GetChatID() string
	SetChatID(chatID string)
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	lock     sync.RWMutex
	chatID   string
	runID    string
	metadata sync.Map
	appData  any
}

func (c *chatContext) GetChatID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.chatID
}

func (c *chatContext) SetChatID(chatID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns ChatContext, a new chat ID is generated if not provided.
func NewChatContext(chatID string, appData any) ChatContext {
	return &chatContext{
		chatID:  values.StringsCoalesce(chatID, NewChatID()),
		runID:   NewChatID(),
		appData: appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.GetChatID()
	}
	return ""
}

// SetChatID updates the chat ID of the ChatContext in ctx.
func SetChatID(ctx context.Context, chatID string) error {
	v := GetChatContext(ctx)
	if v == nil {
		return errors.WithStack(ErrInvalidChatContext)
	}
	v.SetChatID(chatID)
	return nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
