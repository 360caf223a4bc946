package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/mcphost/internal/catalog"
	"github.com/dusk-indust/mcphost/internal/fault"
	"github.com/dusk-indust/mcphost/internal/reasoning"
	"github.com/dusk-indust/mcphost/internal/session"
)

// DefaultToolTimeout bounds one tool invocation.
const DefaultToolTimeout = 60 * time.Second

// Sessions resolves a server id to its session. *session.Registry
// satisfies it.
type Sessions interface {
	Get(id string) (*session.Session, bool)
}

// Compile-time check.
var _ Sessions = (*session.Registry)(nil)

// InvokeResult is the outcome of one tool invocation attempt.
type InvokeResult struct {
	Server   string
	Tool     string
	Text     string
	Err      error
	Duration time.Duration
}

// OK reports whether the tool ran and returned a usable result.
func (r InvokeResult) OK() bool { return r.Err == nil }

// QueryResult is the answer to one query.
type QueryResult struct {
	Query    string
	Segments []string

	// Fallback is set when no envelope could be read and the decision text
	// itself became the answer.
	Fallback bool
	Envelope *Envelope
	Invoke   *InvokeResult
	Note     string
	Answer   string
}

// String joins the segments with newlines.
func (r *QueryResult) String() string {
	return strings.Join(r.Segments, "\n")
}

// Dispatcher turns one query into one answer: a routing decision, at most
// one tool call and a synthesis. It keeps no state between calls and is
// safe for concurrent use.
type Dispatcher struct {
	gateway     reasoning.Gateway
	template    string
	instruction string
	toolTimeout time.Duration
	observer    Observer
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDecisionTemplate sets the text that opens the decision prompt.
func WithDecisionTemplate(s string) Option {
	return func(d *Dispatcher) {
		if s != "" {
			d.template = s
		}
	}
}

// WithSynthesisInstruction sets the system instruction for the final answer.
func WithSynthesisInstruction(s string) Option {
	return func(d *Dispatcher) {
		d.instruction = s
	}
}

// WithToolTimeout bounds each tool call. Zero disables the bound.
func WithToolTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		d.toolTimeout = t
	}
}

// WithObserver receives every state transition.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a Dispatcher answering through g.
func New(g reasoning.Gateway, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gateway:     g,
		template:    DefaultDecisionTemplate,
		instruction: DefaultSynthesisInstruction,
		toolTimeout: DefaultToolTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// Process answers query using the tools in snap, invoking them through
// sessions. Tool trouble of any kind ends up as a failure note inside the
// result. The returned error is either a fault.Gateway error, when the
// reasoning engine produced no text, or the context's error when ctx ended.
func (d *Dispatcher) Process(ctx context.Context, query string, snap catalog.Snapshot, sessions Sessions) (*QueryResult, error) {
	start := time.Now()
	res := &QueryResult{Query: query}
	d.emit(Event{State: StateIdle})

	d.emit(Event{State: StateBuildPrompt, Detail: fmt.Sprintf("%d tools", len(snap.Tools()))})
	prompt := DecisionPrompt(d.template, query, snap.Describe())

	d.emit(Event{State: StateDecisionRequested})
	raw, err := d.ask(ctx, "decision", prompt, "")
	if err != nil {
		return nil, err
	}

	decision := ParseDecision(raw)
	if !decision.IsParsed() {
		d.logger.Debug("decision not parsed, requesting repair", "reason", decision.Reason(), "raw", compact(raw))
		d.emit(Event{State: StateRepairRequested, Err: decision.Reason()})
		repaired, err := d.ask(ctx, "repair", RepairPrompt(raw), "")
		if err != nil {
			return nil, err
		}
		decision = ParseDecision(repaired)
	}

	env, ok := decision.Envelope()
	if !ok {
		d.logger.Debug("falling back to plain answer", "reason", decision.Reason())
		d.emit(Event{State: StateDecisionFallback, Err: decision.Reason()})
		res.Fallback = true
		res.Answer = raw
		res.Segments = []string{raw}
		d.emit(Event{State: StateDone, Elapsed: time.Since(start)})
		return res, nil
	}

	res.Envelope = &env
	res.Segments = append(res.Segments, DecisionLog(env))
	d.emit(Event{State: StateDecisionParsed, Detail: env.Server + "/" + env.ToolName})

	d.emit(Event{State: StateInvoking, Detail: env.Server + "/" + env.ToolName})
	inv := d.invoke(ctx, env, snap, sessions)
	res.Invoke = &inv
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	toolText := inv.Text
	if !inv.OK() {
		res.Note = FailureNote(inv.Err)
		res.Segments = append(res.Segments, res.Note)
		toolText = res.Note
		d.logger.Info("tool failed", "server", env.Server, "tool", env.ToolName, "kind", fault.KindOf(inv.Err), "error", inv.Err)
		d.emit(Event{State: StateInvokeFailed, Detail: env.Server + "/" + env.ToolName, Err: inv.Err, Elapsed: inv.Duration})
	} else {
		d.logger.Debug("tool returned", "server", env.Server, "tool", env.ToolName, "bytes", len(inv.Text), "duration", inv.Duration)
		d.emit(Event{State: StateInvokeOK, Detail: env.Server + "/" + env.ToolName, Elapsed: inv.Duration})
	}

	d.emit(Event{State: StateSynthesizing})
	answer, err := d.ask(ctx, "synthesis", SynthesisPrompt(query, toolText), d.instruction)
	if err != nil {
		return nil, err
	}
	res.Answer = answer
	res.Segments = append(res.Segments, answer)

	d.emit(Event{State: StateDone, Elapsed: time.Since(start)})
	return res, nil
}

// ask calls the gateway. A caller cancellation is returned as is; any other
// failure becomes a fault.Gateway error.
func (d *Dispatcher) ask(ctx context.Context, phase, prompt, system string) (string, error) {
	out, err := d.gateway.Answer(ctx, prompt, system)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", fault.New(fault.Gateway, phase, "", err)
}

// invoke resolves env against snap and the live sessions, then calls the
// tool. It never panics or returns an error out of band: every problem is
// carried in the result.
func (d *Dispatcher) invoke(ctx context.Context, env Envelope, snap catalog.Snapshot, sessions Sessions) InvokeResult {
	res := InvokeResult{Server: env.Server, Tool: env.ToolName}

	s, err := resolve(env, snap, sessions)
	if err != nil {
		res.Err = err
		return res
	}

	cctx := ctx
	if d.toolTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.CallTool(cctx, env.ToolName, env.Arguments)
	res.Duration = time.Since(start)

	switch {
	case err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Err = fault.New(fault.Invocation, "", "",
			fault.New(fault.TimedOut, "", "", fmt.Errorf("%s/%s gave no result within %s: %w", env.Server, env.ToolName, d.toolTimeout, err)))
	case err != nil:
		res.Err = fault.New(fault.Invocation, "", "", fmt.Errorf("%s/%s: %w", env.Server, env.ToolName, err))
	case out == nil:
		res.Err = fault.New(fault.Invocation, "", "", fmt.Errorf("%s/%s returned no result", env.Server, env.ToolName))
	case out.IsError:
		res.Err = fault.New(fault.Invocation, "", "", fmt.Errorf("%s/%s reported an error: %s", env.Server, env.ToolName, contentText(out.Content)))
	default:
		res.Text = contentText(out.Content)
	}
	return res
}

func resolve(env Envelope, snap catalog.Snapshot, sessions Sessions) (*session.Session, error) {
	s, ok := sessions.Get(env.Server)
	if !ok {
		return nil, fault.New(fault.Resolution, "", "", fmt.Errorf("server %q is not connected: %w", env.Server, session.ErrNotFound))
	}
	if st := s.State(); st != session.StateReady {
		return nil, fault.New(fault.Resolution, "", "", fmt.Errorf("server %q is %s: %w", env.Server, st, session.ErrNotReady))
	}
	if _, err := snap.Lookup(env.Server, env.ToolName); err != nil {
		return nil, fault.New(fault.Resolution, "", "", err)
	}
	return s, nil
}

// contentText flattens tool output into the text handed to synthesis.
func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s]", v.URI))
		case *mcp.EmbeddedResource:
			if v.Resource != nil {
				parts = append(parts, v.Resource.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (d *Dispatcher) emit(ev Event) {
	if d.observer != nil {
		d.observer(ev)
	}
}
