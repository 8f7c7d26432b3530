package mcpclient

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "mcpclient")

// ToolExecutor executes tools of one provider.
type ToolExecutor interface {
	Name() string
	ExecuteTool(ctx context.Context, tool string, args map[string]any, policy RetryPolicy) (Result, error)
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the DefaultDialer.
func WithDialer(dial Dialer) Option {
	return func(s *Session) {
		s.dial = dial
	}
}

// WithClientInfo sets the client name and version sent in the handshake.
func WithClientInfo(name, version string) Option {
	return func(s *Session) {
		s.clientInfo = mcp.Implementation{Name: name, Version: version}
	}
}

// Session owns the connection to one provider.
type Session struct {
	name       string
	cfg        ServerConfig
	kind       TransportKind
	dial       Dialer
	clientInfo mcp.Implementation

	lock   sync.RWMutex
	state  State
	client Client
	tools  []ToolDescriptor

	// cleanupLock guards releases
	cleanupLock sync.Mutex
	releases    []func() error
}

var _ ToolExecutor = (*Session)(nil)

// NewSession returns a Session for the provider configuration.
// The transport is detected from the configuration.
func NewSession(name string, cfg ServerConfig, opts ...Option) (*Session, error) {
	if name == "" {
		return nil, errors.New("server name is required")
	}
	kind, err := DetectTransport(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to determine transport for server %s", name)
	}

	s := &Session{
		name:       name,
		cfg:        cfg,
		kind:       kind,
		dial:       DefaultDialer,
		clientInfo: mcp.Implementation{Name: "mcpchat", Version: "1.0.0"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the provider name.
func (s *Session) Name() string {
	return s.name
}

// Transport returns the detected transport.
func (s *Session) Transport() TransportKind {
	return s.kind
}

// Config returns the provider configuration.
func (s *Session) Config() ServerConfig {
	return s.cfg
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

// Tools returns the descriptors of the last successful ListTools call.
func (s *Session) Tools() []ToolDescriptor {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.Clone(s.tools)
}

// HasTool returns true if the cached tool list contains the tool.
func (s *Session) HasTool(name string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.ContainsFunc(s.tools, func(t ToolDescriptor) bool { return t.Name == name })
}

// Initialize connects to the provider and performs the handshake.
// On failure all acquired resources are released, the session is Closed
// and a *ConnectionError is returned.
func (s *Session) Initialize(ctx context.Context) error {
	s.lock.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.lock.Unlock()
		return errors.Newf("server %s: unable to initialize in state %s", s.name, state)
	}
	s.state = StateInitializing
	s.lock.Unlock()

	started := time.Now()
	err := s.connect(ctx)
	if err == nil {
		s.lock.Lock()
		if s.state == StateInitializing {
			s.state = StateReady
		} else {
			err = errors.Newf("closed during initialization")
		}
		s.lock.Unlock()
	}
	if err != nil {
		metricskey.StatsSessionsFailed.IncrCounter(1, s.name, string(s.kind))
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "initialize",
			"server", s.name,
			"transport", s.kind,
			"err", err.Error())
		s.Cleanup(ctx)
		return &ConnectionError{Provider: s.name, Transport: s.kind, Err: err}
	}

	metricskey.PerfSessionInit.MeasureSince(started, s.name, string(s.kind))
	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialized",
		"server", s.name,
		"transport", s.kind)
	return nil
}

// connect acquires the transport first, and the protocol session on top of it.
func (s *Session) connect(ctx context.Context) error {
	c, err := s.dial(ctx, s.name, s.kind, s.cfg)
	if err != nil {
		return err
	}
	if err = s.pushRelease(c.Close); err != nil {
		return err
	}

	hctx, cancel := s.handshakeContext(ctx)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = s.clientInfo
	res, err := c.Initialize(hctx, req)
	if err != nil {
		return errors.Wrapf(err, "handshake failed")
	}

	s.lock.Lock()
	s.client = c
	s.lock.Unlock()

	err = s.pushRelease(func() error {
		s.lock.Lock()
		s.client = nil
		s.tools = nil
		s.lock.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	if res != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"server", s.name,
			"protocol", res.ProtocolVersion,
			"server_name", res.ServerInfo.Name,
			"server_version", res.ServerInfo.Version)
	}
	return nil
}

// pushRelease registers a release func of an acquired resource.
// If the session was closed meanwhile, the resource is released immediately.
func (s *Session) pushRelease(release func() error) error {
	s.cleanupLock.Lock()
	defer s.cleanupLock.Unlock()

	if s.State() != StateInitializing {
		_ = release()
		return errors.Newf("closed during initialization")
	}
	s.releases = append(s.releases, release)
	return nil
}

func (s *Session) handshakeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.kind == TransportStdio {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.TimeoutDuration())
}

// requestContext applies the SSE read timeout, streamable HTTP requests
// are bound by the HTTP client timeout and stdio has no deadline.
func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.kind == TransportSSE {
		return context.WithTimeout(ctx, s.cfg.SSEReadTimeoutDuration())
	}
	return ctx, func() {}
}

func (s *Session) readyClient() (Client, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.state != StateReady || s.client == nil {
		return nil, &NotInitializedError{Provider: s.name, State: s.state}
	}
	return s.client, nil
}

// ListTools fetches the tools of the provider, in the order returned,
// and refreshes the cache.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c, err := s.readyClient()
	if err != nil {
		return nil, err
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	res, err := c.ListTools(rctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.Wrapf(err, "server %s: failed to list tools", s.name)
	}

	tools := make([]ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, NewToolDescriptor(t))
	}

	s.lock.Lock()
	s.tools = tools
	s.lock.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", s.name,
		"tools", len(tools))

	return slices.Clone(tools), nil
}

// ExecuteTool calls the tool according to the retry policy.
// The error of the last attempt is returned as *ToolExecutionError.
// A result flagged as error by the provider is returned as ErrorResult.
func (s *Session) ExecuteTool(ctx context.Context, tool string, args map[string]any, policy RetryPolicy) (Result, error) {
	c, err := s.readyClient()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	attempts := policy.Attempts()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "executing",
		"server", s.name,
		"tool", tool)

	var res *mcp.CallToolResult
	n, err := policy.Do(ctx, func(ctx context.Context) error {
		rctx, cancel := s.requestContext(ctx)
		defer cancel()

		req := mcp.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = args

		r, err := c.CallTool(rctx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	}, func(attempt int, err error) {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "execute_tool",
			"server", s.name,
			"tool", tool,
			"attempt", fmt.Sprintf("%d of %d", attempt, attempts),
			"err", err.Error())
		if attempt < attempts {
			metricskey.StatsToolCallsRetried.IncrCounter(1, s.name, tool)
		}
	})
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, s.name, tool)
		return nil, &ToolExecutionError{Provider: s.name, Tool: tool, Attempts: n, Err: err}
	}

	metricskey.PerfToolCall.MeasureSince(started, s.name, tool)
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, s.name, tool)
	return ResultFromCallTool(res), nil
}

// Cleanup releases the protocol session and the transport in reverse order
// of acquisition. It is safe to call more than once and from several
// goroutines. Failures are logged, the session is always Closed.
func (s *Session) Cleanup(ctx context.Context) {
	_ = s.cleanup(ctx)
}

func (s *Session) cleanup(ctx context.Context) error {
	s.cleanupLock.Lock()
	defer s.cleanupLock.Unlock()

	s.lock.Lock()
	if s.state == StateClosed {
		s.lock.Unlock()
		return nil
	}
	s.state = StateClosing
	s.lock.Unlock()

	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := s.releases[i](); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "cleanup",
				"server", s.name,
				"err", err.Error())
			errs = append(errs, err)
		}
	}
	s.releases = nil

	s.lock.Lock()
	s.state = StateClosed
	s.client = nil
	s.tools = nil
	s.lock.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "closed",
		"server", s.name)

	if len(errs) > 0 {
		return errors.Wrapf(errors.Join(errs...), "server %s: cleanup", s.name)
	}
	return nil
}
