// Package servers holds the capability servers bundled with mcphost. Each
// subpackage builds an *mcp.Server that the binary can run on stdio, so a
// host config can launch "mcphost serve <name>" like any other server.
package servers

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported in the initialize handshake. Set by the linker.
var Version = "dev"

// Implementation names a bundled server.
func Implementation(name string) *mcp.Implementation {
	return &mcp.Implementation{Name: name, Version: Version}
}

// RunStdio serves server on stdin/stdout until the peer disconnects or ctx
// is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
