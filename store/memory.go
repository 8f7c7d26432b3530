package store

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
}

// NewMemoryStore returns MessageStore backed by a map.
func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func chatID(ctx context.Context) (string, error) {
	id := chatmodel.GetChatID(ctx)
	if id == "" {
		return "", errors.WithStack(chatmodel.ErrInvalidChatContext)
	}
	return id, nil
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	id, err := chatID(ctx)
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.storage[id])
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	id, err := chatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	m.storage[id] = append(m.storage[id], msgs...)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	id, err := chatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, id)
	return nil
}
