package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/mcphost/internal/fault"
)

// DefaultConnectTimeout bounds spawn plus initialize handshake.
const DefaultConnectTimeout = 30 * time.Second

// ConnectResult reports the outcome of connecting one launch spec.
type ConnectResult struct {
	ID    string
	State State
	Err   error
}

// CloseResult reports the outcome of releasing one session.
type CloseResult struct {
	ID            string
	AlreadyClosed bool
	Err           error
}

// Registry owns the lifecycle of a named set of capability-server sessions.
// It is constructed once per host, filled by Connect/ConnectAll, read by the
// catalog and dispatcher, and torn down once by CloseAll.
type Registry struct {
	dialer         Dialer
	connectTimeout time.Duration
	maxParallel    int
	logger         *slog.Logger

	mu       sync.RWMutex
	order    []string
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithConnectTimeout bounds each connect attempt. Zero disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.connectTimeout = d
	}
}

// WithMaxParallel caps concurrent dials in ConnectAll. Zero means unbounded.
func WithMaxParallel(n int) Option {
	return func(r *Registry) {
		r.maxParallel = n
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty Registry that starts sessions with dialer.
func NewRegistry(dialer Dialer, opts ...Option) *Registry {
	r := &Registry{
		dialer:         dialer,
		connectTimeout: DefaultConnectTimeout,
		logger:         slog.Default(),
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Connect starts the server described by spec and registers it under
// spec.ID. Failures are recorded on the session (StateFailed) and reported
// in the result; Connect never aborts the caller. A duplicate id replaces
// the previous entry.
func (r *Registry) Connect(ctx context.Context, spec LaunchSpec) ConnectResult {
	return r.dial(ctx, r.register(spec))
}

// ConnectAll registers every spec in order, then dials them concurrently.
// Results follow the order of specs.
func (r *Registry) ConnectAll(ctx context.Context, specs []LaunchSpec) []ConnectResult {
	pending := make([]*Session, len(specs))
	for i, spec := range specs {
		pending[i] = r.register(spec)
	}

	results := make([]ConnectResult, len(specs))
	var g errgroup.Group
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}
	for i, s := range pending {
		g.Go(func() error {
			results[i] = r.dial(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Lookup is Get reporting a missing id as ErrNotFound.
func (r *Registry) Lookup(id string) (*Session, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// List returns every registered session in registration order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Ready returns the sessions currently in StateReady, in registration order.
func (r *Registry) Ready() []*Session {
	var out []*Session
	for _, s := range r.List() {
		if s.State() == StateReady {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CloseAll releases every registered session exactly once, continuing past
// individual failures. Sessions stay registered in StateClosed, so a second
// call reports each of them as already closed.
func (r *Registry) CloseAll() []CloseResult {
	sessions := r.List()
	results := make([]CloseResult, 0, len(sessions))

	for _, s := range sessions {
		already, err := s.release()
		res := CloseResult{ID: s.ID(), AlreadyClosed: already}
		if err != nil {
			res.Err = fault.New(fault.Teardown, "close", s.ID(), err)
			r.logger.Warn("failed to disconnect", "server", s.ID(), "error", err)
		} else if !already {
			r.logger.Info("disconnected", "server", s.ID())
		}
		results = append(results, res)
	}
	return results
}

// register installs a fresh Connecting session, replacing any previous
// entry under the same id in place.
func (r *Registry) register(spec LaunchSpec) *Session {
	s := newSession(spec)

	r.mu.Lock()
	prev, exists := r.sessions[spec.ID]
	r.sessions[spec.ID] = s
	if !exists {
		r.order = append(r.order, spec.ID)
	}
	r.mu.Unlock()

	if exists {
		if _, err := prev.release(); err != nil {
			r.logger.Warn("closing replaced session", "server", spec.ID, "error", err)
		}
	}
	return s
}

func (r *Registry) dial(ctx context.Context, s *Session) ConnectResult {
	dctx := ctx
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}

	conn, err := r.dialer.Dial(dctx, s.Spec())
	if err == nil && conn == nil {
		err = errors.New("dialer returned no connection")
	}
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fault.New(fault.TimedOut, "", "", fmt.Errorf("no handshake within %s: %w", r.connectTimeout, err))
		}
		ferr := fault.New(fault.Connect, "connect", s.ID(), err)
		s.markFailed(ferr)
		r.logger.Warn("failed to connect", "server", s.ID(), "command", s.Spec().Command, "error", err)
		return ConnectResult{ID: s.ID(), State: StateFailed, Err: ferr}
	}

	// A concurrent Connect may have replaced and released this entry while
	// it was dialing.
	if !s.markReady(conn) {
		_ = conn.Close()
		return ConnectResult{ID: s.ID(), State: StateClosed, Err: fault.New(fault.Connect, "connect", s.ID(), errors.New("replaced while connecting"))}
	}

	r.logger.Info("connected to server", "server", s.ID())
	return ConnectResult{ID: s.ID(), State: StateReady}
}
