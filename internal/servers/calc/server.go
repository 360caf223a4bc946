// Package calc is a small demonstration capability server: one arithmetic
// tool, a few static and templated resources and two prompts.
package calc

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/mcphost/internal/servers"
)

// AddInput is the input for the add tool.
type AddInput struct {
	A int `json:"a" jsonschema:"first addend"`
	B int `json:"b" jsonschema:"second addend"`
}

// AddOutput is the result of the add tool.
type AddOutput struct {
	Sum int `json:"sum"`
}

// NewServer creates the demo server.
func NewServer() *mcp.Server {
	server := mcp.NewServer(servers.Implementation("demo"), nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add",
		Description: "Add two numbers",
	}, add)

	server.AddResource(&mcp.Resource{
		Name:     "my-resource",
		URI:      "resource://my-resource",
		MIMEType: "text/plain",
	}, staticText("Hello world"))

	server.AddResource(&mcp.Resource{
		Name:        "config",
		Title:       "Application Configuration",
		Description: "Static configuration data",
		URI:         "config://app",
		MIMEType:    "text/plain",
	}, staticText("App configuration here"))

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "greeting",
		Description: "A personalised greeting",
		URITemplate: "resource://greeting/{name}",
		MIMEType:    "text/plain",
	}, templated("resource://greeting/", func(name string) string {
		return fmt.Sprintf("Hello, %s!", name)
	}))

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "text-file",
		URITemplate: "file://text/{file_name}",
		MIMEType:    "text/plain",
	}, templated("file://text/", func(name string) string {
		return "File found: " + name
	}))

	server.AddPrompt(&mcp.Prompt{
		Name:        "review_code",
		Title:       "Code Review",
		Description: "Asks for a review of a code snippet",
		Arguments:   []*mcp.PromptArgument{{Name: "code", Required: true}},
	}, reviewCode)

	server.AddPrompt(&mcp.Prompt{
		Name:        "debug_error",
		Title:       "Debug Assistant",
		Description: "Starts a debugging conversation about an error",
		Arguments:   []*mcp.PromptArgument{{Name: "error", Required: true}},
	}, debugError)

	return server
}

func add(_ context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, AddOutput, error) {
	return nil, AddOutput{Sum: in.A + in.B}, nil
}

func staticText(text string) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return textResource(req.Params.URI, text), nil
	}
}

// templated serves URIs of the form prefix+value.
func templated(prefix string, render func(string) string) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		value, ok := strings.CutPrefix(uri, prefix)
		if !ok || value == "" || strings.Contains(value, "/") {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return textResource(uri, render(value)), nil
	}
}

func textResource(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}
}

func reviewCode(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	code := req.Params.Arguments["code"]
	return &mcp.GetPromptResult{
		Description: "Code review request",
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: "Please review this code:\n\n" + code}},
		},
	}, nil
}

func debugError(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Debugging session",
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: "I'm seeing this error:"}},
			{Role: "user", Content: &mcp.TextContent{Text: req.Params.Arguments["error"]}},
			{Role: "assistant", Content: &mcp.TextContent{Text: "I'll help debug that. What have you tried so far?"}},
		},
	}, nil
}
