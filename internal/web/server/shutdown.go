package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds the shutdown of a Group
const DefaultShutdownTimeout = 10 * time.Second

// Hook is called once every server of a Group has stopped
type Hook func(ctx context.Context) error

// Group runs servers together. When one fails or the context ends, all are shut down
// and the hooks run in registration order.
type Group struct {
	servers []*Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []Hook
}

// NewGroup creates a Group. A non-positive timeout selects DefaultShutdownTimeout.
func NewGroup(timeout time.Duration, logger *zap.Logger) *Group {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{timeout: timeout, logger: logger}
}

// Add includes s in the group
func (g *Group) Add(s *Server) {
	g.servers = append(g.servers, s)
}

// OnShutdown registers a hook
func (g *Group) OnShutdown(hook Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, hook)
}

// Run binds every server, calls ready, and serves until ctx is done or a server
// fails. Shutdown and hook errors are combined with the serving error.
func (g *Group) Run(ctx context.Context, ready func()) error {
	for i, s := range g.servers {
		if err := s.Listen(); err != nil {
			for _, bound := range g.servers[:i] {
				bound.listener.Close()
			}
			return err
		}
	}
	if ready != nil {
		ready()
	}

	errCh := make(chan error, len(g.servers))
	for _, s := range g.servers {
		go func(s *Server) {
			errCh <- s.Serve()
		}(s)
	}

	var runErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutting down")
	case runErr = <-errCh:
		g.logger.Error("server failed", zap.Error(runErr))
	}

	return multierr.Append(runErr, g.shutdown())
}

func (g *Group) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	var err error
	for _, s := range g.servers {
		if serr := s.Shutdown(ctx); serr != nil {
			g.logger.Warn("server shutdown failed", zap.String("addr", s.Addr()), zap.Error(serr))
			err = multierr.Append(err, serr)
		}
	}

	g.mu.Lock()
	hooks := make([]Hook, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.Unlock()

	for i, hook := range hooks {
		if herr := hook(ctx); herr != nil {
			g.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(herr))
			err = multierr.Append(err, herr)
		}
	}
	return err
}
