// Package filesys is a capability server exposing basic file operations,
// optionally confined to a root directory.
package filesys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/mcphost/internal/servers"
)

// MaxReadBytes caps how much of a file open_file returns.
const MaxReadBytes = 1 << 20

// ErrOutsideRoot is returned for paths that escape the configured root.
var ErrOutsideRoot = errors.New("path is outside the served root")

// Service holds the file tool handlers.
type Service struct {
	root     string
	realRoot string
}

// NewService creates a Service. An empty root leaves paths unconfined;
// otherwise relative paths resolve against root and nothing may escape it,
// through ".." or through symlinks.
func NewService(root string) (*Service, error) {
	if root == "" {
		return &Service{}, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filesys: resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("filesys: root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesys: root %s is not a directory", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("filesys: resolving root: %w", err)
	}
	return &Service{root: abs, realRoot: resolved}, nil
}

// NewServer creates the MCP server with the five file tools and a
// directory listing resource.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(servers.Implementation("file-system"), nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_file",
		Description: "Reads the content of a file given a path by the user",
	}, svc.OpenFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "write_file",
		Description: "Writes content into a file path, replacing it unless append is set",
	}, svc.WriteFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_file",
		Description: "Deletes a file given a path from the user",
	}, svc.DeleteFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rename_file",
		Description: "Renames a file from a specific directory to a given name",
	}, svc.RenameFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_dir",
		Description: "Creates a directory in the specified path",
	}, svc.CreateDir)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "directory",
		Description: "Lists the entries of a directory",
		URITemplate: "dir:///{+path}",
		MIMEType:    "text/plain",
	}, svc.ListDir)

	return server
}

// resolve maps a user path to the path acted on.
func (s *Service) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	if s.root == "" {
		return filepath.Clean(p), nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if !within(s.root, p) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	resolved, err := realPath(p)
	if err != nil {
		return "", err
	}
	if !within(s.realRoot, resolved) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realPath evaluates symlinks in p. Missing trailing components are kept
// as is after resolving the longest existing parent.
func realPath(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if info, lerr := os.Lstat(p); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
		// Dangling link: follow it so a create cannot land outside.
		target, err := os.Readlink(p)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(p), target)
		}
		return realPath(target)
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p, nil
	}
	realParent, err := realPath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(p)), nil
}

// OpenFile reads a text file.
func (s *Service) OpenFile(_ context.Context, _ *mcp.CallToolRequest, in OpenFileInput) (*mcp.CallToolResult, FileOutput, error) {
	path, err := s.resolve(in.Path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxReadBytes+1))
	if err != nil {
		return nil, FileOutput{}, err
	}
	out := FileOutput{Path: path, Message: "File content", Content: string(data[:min(len(data), MaxReadBytes)])}
	if len(data) > MaxReadBytes {
		out.Message = fmt.Sprintf("File content (first %d bytes)", MaxReadBytes)
	}
	return nil, out, nil
}

// WriteFile writes or appends text.
func (s *Service) WriteFile(_ context.Context, _ *mcp.CallToolRequest, in WriteFileInput) (*mcp.CallToolResult, FileOutput, error) {
	path, err := s.resolve(in.Path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if in.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, FileOutput{}, err
	}
	if _, err := f.WriteString(in.Content); err != nil {
		f.Close()
		return nil, FileOutput{}, err
	}
	if err := f.Close(); err != nil {
		return nil, FileOutput{}, err
	}
	return nil, FileOutput{Path: path, Message: fmt.Sprintf("File written successfully (%d bytes)", len(in.Content))}, nil
}

// DeleteFile removes a file. Directories are refused.
func (s *Service) DeleteFile(_ context.Context, _ *mcp.CallToolRequest, in DeleteFileInput) (*mcp.CallToolResult, FileOutput, error) {
	path, err := s.resolve(in.Path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	if info.IsDir() {
		return nil, FileOutput{}, fmt.Errorf("%s is a directory", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, FileOutput{}, err
	}
	return nil, FileOutput{Path: path, Message: "File deleted at " + path}, nil
}

// RenameFile moves a file. A bare new name keeps the file's directory.
func (s *Service) RenameFile(_ context.Context, _ *mcp.CallToolRequest, in RenameFileInput) (*mcp.CallToolResult, FileOutput, error) {
	from, err := s.resolve(in.Path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	target := in.NewName
	if target != "" && !strings.ContainsRune(target, filepath.Separator) && !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(from), target)
	}
	to, err := s.resolve(target)
	if err != nil {
		return nil, FileOutput{}, err
	}
	if err := os.Rename(from, to); err != nil {
		return nil, FileOutput{}, err
	}
	return nil, FileOutput{Path: to, Message: "File renamed as " + to}, nil
}

// CreateDir makes a directory.
func (s *Service) CreateDir(_ context.Context, _ *mcp.CallToolRequest, in CreateDirInput) (*mcp.CallToolResult, FileOutput, error) {
	path, err := s.resolve(in.Path)
	if err != nil {
		return nil, FileOutput{}, err
	}
	if in.Parents {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		return nil, FileOutput{}, err
	}
	return nil, FileOutput{Path: path, Message: "Dir created"}, nil
}

// ListDir serves dir:///{path} as one entry name per line, directories
// suffixed with a slash.
func (s *Service) ListDir(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	rel := strings.TrimPrefix(uri, "dir:///")
	if rel == uri {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if rel == "" {
		rel = "."
	}
	if s.root == "" && !filepath.IsAbs(rel) {
		rel = string(filepath.Separator) + rel
	}
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     strings.Join(names, "\n"),
		}},
	}, nil
}
