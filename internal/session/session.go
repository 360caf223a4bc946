package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrNotFound is returned when no session is registered under an id.
	ErrNotFound = errors.New("session: not found")

	// ErrNotReady is returned when an operation targets a session that is
	// connecting, failed or closed.
	ErrNotReady = errors.New("session: not ready")
)

// State is the lifecycle state of a Session.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LaunchSpec declares how to start one capability server.
type LaunchSpec struct {
	ID      string
	Command string
	Args    []string
	Env     map[string]string
}

// Conn is the part of an MCP client session the host relies on.
// *mcp.ClientSession satisfies it.
type Conn interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error)
	ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error)
	Close() error
}

// Compile-time check.
var _ Conn = (*mcp.ClientSession)(nil)

// Session is the host's handle on one capability server. Sessions are
// created and mutated only by a Registry.
type Session struct {
	id   string
	spec LaunchSpec

	mu          sync.Mutex
	state       State
	err         error
	conn        Conn
	connectedAt time.Time
}

func newSession(spec LaunchSpec) *Session {
	return &Session{id: spec.ID, spec: spec, state: StateConnecting}
}

// ID returns the registry key of the session.
func (s *Session) ID() string { return s.id }

// Spec returns the launch spec the session was created from.
func (s *Session) Spec() LaunchSpec { return s.spec }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the connect failure of a Failed session, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ConnectedAt returns when the handshake completed; zero if it never did.
func (s *Session) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}

// ListTools returns every tool the server exposes, following pagination.
func (s *Session) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	conn, err := s.ready()
	if err != nil {
		return nil, err
	}
	return collect(func(cursor string) ([]*mcp.Tool, string, error) {
		res, err := conn.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, "", err
		}
		return res.Tools, res.NextCursor, nil
	})
}

// CallTool invokes a tool by name. A result with IsError set is returned as
// is; interpreting it is the caller's concern.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	conn, err := s.ready()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return conn.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// ListResources returns every resource the server exposes.
func (s *Session) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	conn, err := s.ready()
	if err != nil {
		return nil, err
	}
	return collect(func(cursor string) ([]*mcp.Resource, string, error) {
		res, err := conn.ListResources(ctx, &mcp.ListResourcesParams{Cursor: cursor})
		if err != nil {
			return nil, "", err
		}
		return res.Resources, res.NextCursor, nil
	})
}

// ListPrompts returns every prompt the server exposes.
func (s *Session) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	conn, err := s.ready()
	if err != nil {
		return nil, err
	}
	return collect(func(cursor string) ([]*mcp.Prompt, string, error) {
		res, err := conn.ListPrompts(ctx, &mcp.ListPromptsParams{Cursor: cursor})
		if err != nil {
			return nil, "", err
		}
		return res.Prompts, res.NextCursor, nil
	})
}

func (s *Session) ready() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.conn == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, s.id, s.state)
	}
	return s.conn, nil
}

// markReady installs conn unless the session left StateConnecting.
func (s *Session) markReady(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.conn = conn
	s.err = nil
	s.state = StateReady
	s.connectedAt = time.Now()
	return true
}

func (s *Session) markFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.conn = nil
	s.err = err
	s.state = StateFailed
}

// release moves the session to Closed and closes its transport, if any.
// It reports alreadyClosed when the session was Closed before the call.
func (s *Session) release() (alreadyClosed bool, err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return true, nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic closing transport: %v", r)
		}
	}()
	return false, conn.Close()
}

// collect drains a cursor-paginated listing.
func collect[T any](page func(cursor string) ([]T, string, error)) ([]T, error) {
	var (
		all    []T
		cursor string
	)
	seen := map[string]bool{"": true}
	for {
		items, next, err := page(cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if seen[next] {
			return all, nil
		}
		seen[next] = true
		cursor = next
	}
}
