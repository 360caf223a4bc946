package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Dialer starts a capability server and completes the MCP initialize
// handshake with it.
type Dialer interface {
	Dial(ctx context.Context, spec LaunchSpec) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, spec LaunchSpec) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, spec LaunchSpec) (Conn, error) {
	return f(ctx, spec)
}

// Compile-time checks.
var (
	_ Dialer = DialerFunc(nil)
	_ Dialer = (*CommandDialer)(nil)
)

// CommandDialer launches each server as a child process and speaks MCP over
// its stdin/stdout.
type CommandDialer struct {
	client    *mcp.Client
	terminate time.Duration
	logger    *slog.Logger
}

// NewCommandDialer creates a CommandDialer whose sessions identify as impl.
// Child stderr is forwarded to logger at debug level.
func NewCommandDialer(impl *mcp.Implementation, logger *slog.Logger) *CommandDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandDialer{
		client:    mcp.NewClient(impl, nil),
		terminate: 5 * time.Second,
		logger:    logger,
	}
}

// Dial spawns spec.Command and performs the initialize handshake.
func (d *CommandDialer) Dial(ctx context.Context, spec LaunchSpec) (Conn, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("launch %s: empty command", spec.ID)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	stderr := &lineWriter{logger: d.logger.With("server", spec.ID)}
	cmd.Stderr = stderr

	cs, err := d.client.Connect(ctx, &mcp.CommandTransport{
		Command:           cmd,
		TerminateDuration: d.terminate,
	}, nil)
	if err != nil {
		stderr.Flush()
		return nil, err
	}
	return &commandConn{Conn: cs, stderr: stderr}, nil
}

// commandConn logs the child's unterminated last stderr line once the
// transport is closed and the process has exited.
type commandConn struct {
	Conn
	stderr *lineWriter
}

func (c *commandConn) Close() error {
	err := c.Conn.Close()
	c.stderr.Flush()
	return err
}

// mergeEnv overlays extra onto base. Keys in extra win.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := extra[key]; override {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// lineWriter logs each complete line written to it.
type lineWriter struct {
	logger *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			w.logger.Debug(line)
		}
	}
}

// Flush logs any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if line := strings.TrimRight(w.buf.String(), "\r\n"); line != "" {
		w.logger.Debug(line)
	}
	w.buf.Reset()
}
