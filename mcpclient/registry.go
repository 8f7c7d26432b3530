package mcpclient

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// Registry holds the configured sessions in configuration order.
type Registry struct {
	sessions []*Session

	lock  sync.RWMutex
	index map[string]*Session
}

// NewRegistry returns a Registry of the sessions.
func NewRegistry(sessions ...*Session) *Registry {
	return &Registry{
		sessions: sessions,
		index:    map[string]*Session{},
	}
}

// NewRegistryFromConfig creates a session per server. Server names must be unique.
func NewRegistryFromConfig(servers []NamedServer, opts ...Option) (*Registry, error) {
	seen := make(map[string]bool, len(servers))
	sessions := make([]*Session, 0, len(servers))
	for _, srv := range servers {
		if seen[srv.Name] {
			return nil, errors.Newf("duplicate server name: %s", srv.Name)
		}
		seen[srv.Name] = true

		s, err := NewSession(srv.Name, srv.Config, opts...)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return NewRegistry(sessions...), nil
}

// Sessions returns the sessions in configuration order.
func (r *Registry) Sessions() []*Session {
	return slices.Clone(r.sessions)
}

// InitializeAll initializes the sessions one by one. On the first failure
// every session is cleaned up and the error is returned.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, s := range r.sessions {
		if err := s.Initialize(ctx); err != nil {
			_ = r.CleanupAll(ctx)
			return err
		}
	}
	return nil
}

// ListAllTools lists the tools of every session and rebuilds the tool index.
// A session that fails to list its tools is logged and skipped.
func (r *Registry) ListAllTools(ctx context.Context) []ToolDescriptor {
	var all []ToolDescriptor
	index := map[string]*Session{}

	for _, s := range r.sessions {
		tools, err := s.ListTools(ctx)
		if err != nil {
			metricskey.StatsSessionsFailed.IncrCounter(1, s.Name(), string(s.Transport()))
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "list_tools",
				"server", s.Name(),
				"err", err.Error())
			continue
		}
		logger.ContextKV(ctx, xlog.INFO,
			"server", s.Name(),
			"tools", len(tools))

		for _, t := range tools {
			// the first server wins
			if _, ok := index[t.Name]; !ok {
				index[t.Name] = s
			}
		}
		all = append(all, tools...)
	}

	r.lock.Lock()
	r.index = index
	r.lock.Unlock()

	return all
}

// FindOwner returns the first session that provides the tool,
// or *OwnerNotFoundError.
func (r *Registry) FindOwner(tool string) (ToolExecutor, error) {
	r.lock.RLock()
	s, ok := r.index[tool]
	r.lock.RUnlock()
	if ok {
		return s, nil
	}

	// sessions listed directly, not via ListAllTools
	for _, s := range r.sessions {
		if s.HasTool(tool) {
			return s, nil
		}
	}

	metricskey.StatsToolCallsNotFound.IncrCounter(1, tool)
	return nil, &OwnerNotFoundError{Tool: tool}
}

// CleanupAll cleans up all sessions concurrently. The errors are collected
// for logging only, every session ends up Closed.
func (r *Registry) CleanupAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)
	for _, s := range r.sessions {
		wg.Go(func() {
			if err := s.cleanup(ctx); err != nil {
				lock.Lock()
				errs = append(errs, err)
				lock.Unlock()
			}
		})
	}
	wg.Wait()

	r.lock.Lock()
	r.index = map[string]*Session{}
	r.lock.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
