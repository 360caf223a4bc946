package host

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/mcphost/internal/catalog"
	"github.com/dusk-indust/mcphost/internal/dispatch"
	"github.com/dusk-indust/mcphost/internal/session"
)

// PrintCatalog writes the tools of snap grouped by server.
func PrintCatalog(w io.Writer, snap catalog.Snapshot) {
	if len(snap.Entries) == 0 {
		fmt.Fprintln(w, "No servers are ready.")
		return
	}
	for i, e := range snap.Entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if e.Err != nil {
			fmt.Fprintf(w, "%s  [unavailable: %v]\n", e.SessionID, e.Err)
			continue
		}
		fmt.Fprintf(w, "%s  (%d tools)\n", e.SessionID, len(e.Tools))
		for _, t := range e.Tools {
			fmt.Fprintf(w, "  - %-20s %s\n", t.Name, oneLine(t.Description))
		}
	}
}

// ServerInfo is everything a server advertises.
type ServerInfo struct {
	ID        string
	State     session.State
	Err       error
	Tools     []string
	Resources []string
	Prompts   []string
}

// Inspect lists tools, resources and prompts of every registered server.
// Listing errors are folded into Err.
func (h *Host) Inspect(ctx context.Context) []ServerInfo {
	sessions := h.registry.List()
	infos := make([]ServerInfo, len(sessions))

	var g errgroup.Group
	for i, s := range sessions {
		infos[i] = ServerInfo{ID: s.ID(), State: s.State(), Err: s.Err()}
		if s.State() != session.StateReady {
			continue
		}
		g.Go(func() error {
			lctx := ctx
			if h.catalogTimeout > 0 {
				var cancel context.CancelFunc
				lctx, cancel = context.WithTimeout(ctx, h.catalogTimeout)
				defer cancel()
			}
			infos[i] = inspectOne(lctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

func inspectOne(ctx context.Context, s *session.Session) ServerInfo {
	info := ServerInfo{ID: s.ID(), State: s.State()}
	var errs []string

	tools, err := s.ListTools(ctx)
	if err != nil {
		errs = append(errs, "tools: "+err.Error())
	}
	for _, t := range tools {
		info.Tools = append(info.Tools, t.Name)
	}

	resources, err := s.ListResources(ctx)
	if err != nil {
		errs = append(errs, "resources: "+err.Error())
	}
	for _, r := range resources {
		info.Resources = append(info.Resources, r.URI)
	}

	prompts, err := s.ListPrompts(ctx)
	if err != nil {
		errs = append(errs, "prompts: "+err.Error())
	}
	for _, p := range prompts {
		info.Prompts = append(info.Prompts, p.Name)
	}

	if len(errs) > 0 {
		info.Err = fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return info
}

// PrintInspection writes one block per server.
func PrintInspection(w io.Writer, infos []ServerInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No servers configured.")
		return
	}
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s [%s]\n", info.ID, info.State)
		if info.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", info.Err)
		}
		if info.State != session.StateReady {
			continue
		}
		fmt.Fprintf(w, "  tools:     %s\n", list(info.Tools))
		fmt.Fprintf(w, "  resources: %s\n", list(info.Resources))
		fmt.Fprintf(w, "  prompts:   %s\n", list(info.Prompts))
	}
}

// StreamEvents prints reporter events to w until the reporter is closed.
// The returned channel closes when the last event is written.
func StreamEvents(r *dispatch.Reporter, w io.Writer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range r.Subscribe() {
			fmt.Fprintln(w, dispatch.FormatEvent(ev))
		}
	}()
	return done
}

func list(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
