// Package testutil provides in-memory capability servers and fake session
// transports shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/mcphost/internal/session"
)

// TextTool is a tool whose handler returns plain text.
type TextTool struct {
	Name        string
	Description string
	Handle      func(ctx context.Context, args map[string]any) (string, error)
}

// NewServer builds an MCP server exposing tools.
func NewServer(name string, tools ...TextTool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "test"}, nil)
	for _, tool := range tools {
		handle := tool.Handle
		mcp.AddTool(server, &mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
		}, func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			text, err := handle(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, nil, nil
		})
	}
	return server
}

// Dialer connects launch specs to in-memory servers keyed by spec id.
// Specs with no server fail the way a missing executable would.
type Dialer struct {
	servers map[string]*mcp.Server

	mu    sync.Mutex
	dials map[string]int
}

// Compile-time check.
var _ session.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer over servers.
func NewDialer(servers map[string]*mcp.Server) *Dialer {
	return &Dialer{servers: servers, dials: make(map[string]int)}
}

// Dial connects a fresh client session to the server registered for spec.ID.
func (d *Dialer) Dial(ctx context.Context, spec session.LaunchSpec) (session.Conn, error) {
	d.mu.Lock()
	d.dials[spec.ID]++
	d.mu.Unlock()

	server, ok := d.servers[spec.ID]
	if !ok {
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", spec.Command)
	}

	st, ct := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, st, nil); err != nil {
		return nil, err
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "mcphost-test", Version: "test"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Dials returns how many times id was dialed.
func (d *Dialer) Dials(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[id]
}

// FakeConn is a scripted session.Conn.
type FakeConn struct {
	Tools    []*mcp.Tool
	ListErr  error
	CallFunc func(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	CloseErr error

	mu     sync.Mutex
	closes int
	calls  []*mcp.CallToolParams
}

// Compile-time check.
var _ session.Conn = (*FakeConn)(nil)

func (f *FakeConn) ListTools(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return &mcp.ListToolsResult{Tools: f.Tools}, nil
}

func (f *FakeConn) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.CallFunc == nil {
		return nil, fmt.Errorf("tool %q not scripted", params.Name)
	}
	return f.CallFunc(ctx, params)
}

func (f *FakeConn) ListResources(_ context.Context, _ *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{}, nil
}

func (f *FakeConn) ListPrompts(_ context.Context, _ *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{}, nil
}

func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.CloseErr
}

// Closes returns how many times Close was called.
func (f *FakeConn) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Calls returns the recorded CallTool parameters.
func (f *FakeConn) Calls() []*mcp.CallToolParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mcp.CallToolParams(nil), f.calls...)
}

// TextResult builds a successful single-text tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// ConnDialer dials fixed connections by spec id; missing ids fail.
func ConnDialer(conns map[string]session.Conn) session.Dialer {
	return session.DialerFunc(func(_ context.Context, spec session.LaunchSpec) (session.Conn, error) {
		conn, ok := conns[spec.ID]
		if !ok {
			return nil, fmt.Errorf("spawn %s: no such server", spec.Command)
		}
		return conn, nil
	})
}
