package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/mcphost/internal/fault"
	"github.com/dusk-indust/mcphost/internal/session"
	"github.com/dusk-indust/mcphost/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func echoServer(name string) *mcp.Server {
	return testutil.NewServer(name, testutil.TextTool{
		Name:        "echo",
		Description: "Echoes the text argument",
		Handle: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	})
}

func TestRegistry_ConnectReady(t *testing.T) {
	dialer := testutil.NewDialer(map[string]*mcp.Server{"fs": echoServer("fs")})
	reg := session.NewRegistry(dialer, session.WithLogger(quietLogger()))
	t.Cleanup(func() { reg.CloseAll() })

	res := reg.Connect(context.Background(), session.LaunchSpec{ID: "fs", Command: "fs-server"})
	require.NoError(t, res.Err)
	assert.Equal(t, session.StateReady, res.State)

	s, ok := reg.Get("fs")
	require.True(t, ok)
	assert.Equal(t, session.StateReady, s.State())
	assert.False(t, s.ConnectedAt().IsZero())

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	out, err := s.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "hi", out.Content[0].(*mcp.TextContent).Text)
}

func TestRegistry_ConnectFailureIsRecorded(t *testing.T) {
	reg := session.NewRegistry(testutil.NewDialer(nil), session.WithLogger(quietLogger()))

	res := reg.Connect(context.Background(), session.LaunchSpec{ID: "slack", Command: "python"})
	require.Error(t, res.Err)
	assert.Equal(t, session.StateFailed, res.State)
	assert.Equal(t, fault.Connect, fault.KindOf(res.Err))

	s, ok := reg.Get("slack")
	require.True(t, ok, "failed sessions stay registered for diagnostics")
	assert.Equal(t, session.StateFailed, s.State())
	assert.Equal(t, res.Err, s.Err())

	_, err := s.ListTools(context.Background())
	assert.ErrorIs(t, err, session.ErrNotReady)
}

// TestRegistry_ConnectAllContinuesPastFailures verifies that failed connects
// never stop the others and that results keep declaration order.
func TestRegistry_ConnectAllContinuesPastFailures(t *testing.T) {
	dialer := testutil.NewDialer(map[string]*mcp.Server{
		"fs":    echoServer("fs"),
		"wl_db": echoServer("wl_db"),
	})
	reg := session.NewRegistry(dialer, session.WithLogger(quietLogger()), session.WithMaxParallel(2))
	t.Cleanup(func() { reg.CloseAll() })

	specs := []session.LaunchSpec{
		{ID: "slack", Command: "python"},
		{ID: "fs", Command: "python"},
		{ID: "weather", Command: "python"},
		{ID: "wl_db", Command: "python"},
	}
	results := reg.ConnectAll(context.Background(), specs)
	require.Len(t, results, 4)

	want := map[string]session.State{
		"slack":   session.StateFailed,
		"fs":      session.StateReady,
		"weather": session.StateFailed,
		"wl_db":   session.StateReady,
	}
	for i, res := range results {
		assert.Equal(t, specs[i].ID, res.ID, "results follow spec order")
		assert.Equal(t, want[res.ID], res.State, res.ID)
	}

	var ids []string
	for _, s := range reg.List() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"slack", "fs", "weather", "wl_db"}, ids)

	ready := reg.Ready()
	require.Len(t, ready, 2)
	assert.Equal(t, "fs", ready[0].ID())
	assert.Equal(t, "wl_db", ready[1].ID())
}

// TestRegistry_DuplicateIDReplaces verifies that reconnecting an id replaces
// the session in place and releases the old transport.
func TestRegistry_DuplicateIDReplaces(t *testing.T) {
	first := &testutil.FakeConn{}
	second := &testutil.FakeConn{}
	conns := []*testutil.FakeConn{first, second}
	n := 0
	dialer := session.DialerFunc(func(context.Context, session.LaunchSpec) (session.Conn, error) {
		c := conns[n]
		n++
		return c, nil
	})

	reg := session.NewRegistry(dialer, session.WithLogger(quietLogger()))
	reg.Connect(context.Background(), session.LaunchSpec{ID: "fs", Command: "a"})
	reg.Connect(context.Background(), session.LaunchSpec{ID: "fs", Command: "b"})

	assert.Equal(t, 1, reg.Len())
	s, ok := reg.Get("fs")
	require.True(t, ok)
	assert.Equal(t, "b", s.Spec().Command)
	assert.Equal(t, 1, first.Closes(), "replaced transport is released")
	assert.Equal(t, 0, second.Closes())
}

func TestRegistry_ConnectTimeout(t *testing.T) {
	dialer := session.DialerFunc(func(ctx context.Context, _ session.LaunchSpec) (session.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg := session.NewRegistry(dialer,
		session.WithLogger(quietLogger()),
		session.WithConnectTimeout(20*time.Millisecond),
	)

	res := reg.Connect(context.Background(), session.LaunchSpec{ID: "stuck", Command: "sleep"})
	require.Error(t, res.Err)
	assert.True(t, fault.Is(res.Err, fault.Connect))
	assert.True(t, fault.Is(res.Err, fault.TimedOut))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestRegistry_NilConnIsAFailure(t *testing.T) {
	dialer := session.DialerFunc(func(context.Context, session.LaunchSpec) (session.Conn, error) {
		return nil, nil
	})
	reg := session.NewRegistry(dialer, session.WithLogger(quietLogger()))

	res := reg.Connect(context.Background(), session.LaunchSpec{ID: "x", Command: "x"})
	assert.Equal(t, session.StateFailed, res.State)
	require.Error(t, res.Err)
}

// TestRegistry_CloseAllBestEffort verifies that a teardown error on one
// session does not stop the rest from closing.
func TestRegistry_CloseAllBestEffort(t *testing.T) {
	a := &testutil.FakeConn{}
	b := &testutil.FakeConn{CloseErr: errors.New("broken pipe")}
	c := &testutil.FakeConn{}
	reg := session.NewRegistry(testutil.ConnDialer(map[string]session.Conn{"a": a, "b": b, "c": c}),
		session.WithLogger(quietLogger()))
	reg.ConnectAll(context.Background(), []session.LaunchSpec{
		{ID: "a", Command: "a"}, {ID: "b", Command: "b"}, {ID: "c", Command: "c"}, {ID: "dead", Command: "d"},
	})

	results := reg.CloseAll()
	require.Len(t, results, 4, "one result per registered session")

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Equal(t, fault.Teardown, fault.KindOf(results[1].Err))
	assert.Contains(t, results[1].Err.Error(), "broken pipe")
	assert.NoError(t, results[2].Err, "failure on b does not stop c")
	assert.NoError(t, results[3].Err, "failed sessions have nothing to release")

	for _, conn := range []*testutil.FakeConn{a, b, c} {
		assert.Equal(t, 1, conn.Closes())
	}
	for _, s := range reg.List() {
		assert.Equal(t, session.StateClosed, s.State())
	}
}

// TestRegistry_CloseAllIdempotent verifies that a second CloseAll reports
// every session as already closed.
func TestRegistry_CloseAllIdempotent(t *testing.T) {
	a := &testutil.FakeConn{}
	reg := session.NewRegistry(testutil.ConnDialer(map[string]session.Conn{"a": a}),
		session.WithLogger(quietLogger()))
	reg.ConnectAll(context.Background(), []session.LaunchSpec{{ID: "a", Command: "a"}, {ID: "b", Command: "b"}})

	first := reg.CloseAll()
	second := reg.CloseAll()

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for _, res := range first {
		assert.False(t, res.AlreadyClosed)
	}
	for _, res := range second {
		assert.True(t, res.AlreadyClosed, res.ID)
		assert.NoError(t, res.Err)
	}
	assert.Equal(t, 1, a.Closes())
}

// TestRegistry_CloseAllRecoversPanics verifies that a panicking transport
// becomes a teardown error.
func TestRegistry_CloseAllRecoversPanics(t *testing.T) {
	reg := session.NewRegistry(testutil.ConnDialer(map[string]session.Conn{
		"bad":  panicConn{&testutil.FakeConn{}},
		"good": &testutil.FakeConn{},
	}), session.WithLogger(quietLogger()))
	reg.ConnectAll(context.Background(), []session.LaunchSpec{{ID: "bad", Command: "x"}, {ID: "good", Command: "y"}})

	results := reg.CloseAll()
	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "panic")
	assert.NoError(t, results[1].Err)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := session.NewRegistry(testutil.NewDialer(nil), session.WithLogger(quietLogger()))
	_, err := reg.Lookup("nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSession_ListToolsFollowsCursor(t *testing.T) {
	conn := &pagedConn{pages: [][]*mcp.Tool{
		{{Name: "open_file"}, {Name: "write_file"}},
		{{Name: "delete_file"}},
	}}
	reg := session.NewRegistry(testutil.ConnDialer(map[string]session.Conn{"fs": conn}),
		session.WithLogger(quietLogger()))
	reg.Connect(context.Background(), session.LaunchSpec{ID: "fs", Command: "fs"})

	s, _ := reg.Get("fs")
	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "delete_file", tools[2].Name)
}

// TestSession_ListToolsStopsOnCursorCycle verifies that a server cycling
// through cursors cannot keep the listing paging forever.
func TestSession_ListToolsStopsOnCursorCycle(t *testing.T) {
	conn := &pagedConn{
		pages: [][]*mcp.Tool{
			{{Name: "open_file"}},
			{{Name: "write_file"}},
			{{Name: "delete_file"}},
		},
		next: map[int]string{0: "1", 1: "2", 2: "1"},
	}
	reg := session.NewRegistry(testutil.ConnDialer(map[string]session.Conn{"fs": conn}),
		session.WithLogger(quietLogger()))
	reg.Connect(context.Background(), session.LaunchSpec{ID: "fs", Command: "fs"})

	s, _ := reg.Get("fs")
	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 3)
	assert.Equal(t, 3, conn.requests)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", session.StateConnecting.String())
	assert.Equal(t, "ready", session.StateReady.String())
	assert.Equal(t, "failed", session.StateFailed.String())
	assert.Equal(t, "closed", session.StateClosed.String())
}

type panicConn struct{ *testutil.FakeConn }

func (panicConn) Close() error { panic("transport already torn down") }

// pagedConn serves tools one page per call, using the page index as cursor.
// next overrides the cursor returned after a page.
type pagedConn struct {
	testutil.FakeConn
	pages    [][]*mcp.Tool
	next     map[int]string
	requests int
}

func (p *pagedConn) ListTools(_ context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	p.requests++
	idx := 0
	if params != nil && params.Cursor != "" {
		idx = int(params.Cursor[0] - '0')
	}
	res := &mcp.ListToolsResult{Tools: p.pages[idx]}
	if cursor, ok := p.next[idx]; ok {
		res.NextCursor = cursor
	} else if idx+1 < len(p.pages) {
		res.NextCursor = string(rune('0' + idx + 1))
	}
	return res, nil
}
