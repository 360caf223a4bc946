package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/mcphost/internal/fault"
	"github.com/dusk-indust/mcphost/internal/session"
)

// DefaultListTimeout bounds one session's tool listing.
const DefaultListTimeout = 10 * time.Second

var (
	ErrUnknownServer = errors.New("catalog: unknown server")
	ErrListingFailed = errors.New("catalog: tool listing unavailable")
	ErrUnknownTool   = errors.New("catalog: unknown tool")
)

// ToolDescriptor describes one invokable tool. Names are unique within a
// session only, so a descriptor always carries its session id.
type ToolDescriptor struct {
	SessionID   string
	Name        string
	Description string
	InputSchema any
}

// Entry is the catalog view of one Ready session: either its tools or the
// error that prevented listing them.
type Entry struct {
	SessionID string
	Tools     []ToolDescriptor
	Err       error
}

// Snapshot is a point-in-time catalog, one entry per Ready session in
// registration order.
type Snapshot struct {
	Entries []Entry
	TakenAt time.Time
}

// Source yields the sessions to aggregate. *session.Registry satisfies it.
type Source interface {
	Ready() []*session.Session
}

// Compile-time check.
var _ Source = (*session.Registry)(nil)

type config struct {
	listTimeout time.Duration
	logger      *slog.Logger
}

// Option configures Aggregate.
type Option func(*config)

// WithListTimeout bounds each session's listing. Zero disables the bound.
func WithListTimeout(d time.Duration) Option {
	return func(c *config) {
		c.listTimeout = d
	}
}

// WithLogger sets the logger used for listing failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Aggregate lists tools on every Ready session concurrently. A session whose
// listing fails contributes an entry carrying the error, so one outage never
// blanks the catalog. Sessions that are not Ready are omitted.
func Aggregate(ctx context.Context, src Source, opts ...Option) Snapshot {
	cfg := config{listTimeout: DefaultListTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "catalog")

	sessions := src.Ready()
	entries := make([]Entry, len(sessions))

	var g errgroup.Group
	for i, s := range sessions {
		g.Go(func() error {
			entries[i] = listOne(ctx, s, cfg.listTimeout)
			if entries[i].Err != nil {
				logger.Warn("tool listing failed", "server", s.ID(), "error", entries[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Snapshot{Entries: entries, TakenAt: time.Now()}
}

func listOne(ctx context.Context, s *session.Session, timeout time.Duration) Entry {
	lctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tools, err := s.ListTools(lctx)
	if err != nil {
		if errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fault.New(fault.TimedOut, "", "", fmt.Errorf("no tool list within %s: %w", timeout, err))
		}
		return Entry{SessionID: s.ID(), Err: fault.New(fault.CatalogFetch, "list tools", s.ID(), err)}
	}

	descs := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		descs = append(descs, ToolDescriptor{
			SessionID:   s.ID(),
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return Entry{SessionID: s.ID(), Tools: descs}
}

// Entry returns the entry for a session id.
func (s Snapshot) Entry(id string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.SessionID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Lookup resolves a server and tool name against the snapshot.
func (s Snapshot) Lookup(server, tool string) (ToolDescriptor, error) {
	e, ok := s.Entry(server)
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("%w %q", ErrUnknownServer, server)
	}
	if e.Err != nil {
		return ToolDescriptor{}, fmt.Errorf("%w for %q: %v", ErrListingFailed, server, e.Err)
	}
	for _, d := range e.Tools {
		if d.Name == tool {
			return d, nil
		}
	}
	return ToolDescriptor{}, fmt.Errorf("%w %q on server %q (available: %s)", ErrUnknownTool, tool, server, strings.Join(e.names(), ", "))
}

// Tools returns every descriptor across all entries.
func (s Snapshot) Tools() []ToolDescriptor {
	var out []ToolDescriptor
	for _, e := range s.Entries {
		out = append(out, e.Tools...)
	}
	return out
}

// Failed returns the entries whose listing failed.
func (s Snapshot) Failed() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

func (e Entry) names() []string {
	names := make([]string, len(e.Tools))
	for i, d := range e.Tools {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

type describedTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema,omitempty"`
}

type describedServer struct {
	Server string          `json:"server"`
	Tools  []describedTool `json:"tools,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Describe renders the snapshot for the reasoning engine: a JSON array with
// one object per server holding its tools or its listing error.
func (s Snapshot) Describe() string {
	servers := make([]describedServer, 0, len(s.Entries))
	for _, e := range s.Entries {
		ds := describedServer{Server: e.SessionID}
		if e.Err != nil {
			ds.Error = e.Err.Error()
		}
		for _, d := range e.Tools {
			ds.Tools = append(ds.Tools, describedTool{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.InputSchema,
			})
		}
		servers = append(servers, ds)
	}

	data, err := json.Marshal(servers)
	if err != nil {
		return fmt.Sprintf("%+v", servers)
	}
	return string(data)
}
