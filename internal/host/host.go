// Package host composes the registry, catalog and dispatcher into the
// interactive question-answering loop.
package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dusk-indust/mcphost/internal/catalog"
	"github.com/dusk-indust/mcphost/internal/dispatch"
	"github.com/dusk-indust/mcphost/internal/session"
	"github.com/dusk-indust/mcphost/internal/transcript"
)

// Recorder stores answered queries.
type Recorder interface {
	Record(ctx context.Context, e *transcript.Entry) error
}

// Compile-time check.
var _ Recorder = (*transcript.Store)(nil)

// Host owns one registry for its whole lifetime: connect once, answer
// queries, close once.
type Host struct {
	registry       *session.Registry
	dispatcher     *dispatch.Dispatcher
	recorder       Recorder
	catalogTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithRecorder records every answered query.
func WithRecorder(r Recorder) Option {
	return func(h *Host) {
		h.recorder = r
	}
}

// WithCatalogTimeout bounds each server's tool listing per query.
func WithCatalogTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.catalogTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// New creates a Host.
func New(reg *session.Registry, d *dispatch.Dispatcher, opts ...Option) *Host {
	h := &Host{
		registry:       reg,
		dispatcher:     d,
		catalogTimeout: catalog.DefaultListTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "host")
	return h
}

// Registry returns the host's registry.
func (h *Host) Registry() *session.Registry { return h.registry }

// Start connects every spec. Failures are logged and kept on their
// sessions; they never stop the host.
func (h *Host) Start(ctx context.Context, specs []session.LaunchSpec) []session.ConnectResult {
	results := h.registry.ConnectAll(ctx, specs)
	for _, res := range results {
		if res.Err != nil {
			h.logger.Warn("server unavailable", "server", res.ID, "error", res.Err)
			continue
		}
		h.logger.Info("server connected", "server", res.ID)
	}
	return results
}

// Catalog aggregates the tools of every Ready server.
func (h *Host) Catalog(ctx context.Context) catalog.Snapshot {
	return catalog.Aggregate(ctx, h.registry,
		catalog.WithListTimeout(h.catalogTimeout),
		catalog.WithLogger(h.logger),
	)
}

// Ask answers one query against a fresh catalog snapshot and records it.
func (h *Host) Ask(ctx context.Context, query string) (*dispatch.QueryResult, error) {
	start := time.Now()
	snap := h.Catalog(ctx)
	res, err := h.dispatcher.Process(ctx, query, snap, h.registry)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if h.recorder != nil {
		// Recording is best effort.
		if err := h.recorder.Record(context.WithoutCancel(ctx), transcript.FromResult(res, elapsed)); err != nil {
			h.logger.Warn("transcript write failed", "error", err)
		}
	}
	return res, nil
}

// Shutdown closes every session and logs teardown failures.
func (h *Host) Shutdown() []session.CloseResult {
	results := h.registry.CloseAll()
	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	h.logger.Debug("sessions closed", "total", len(results), "failed", failed)
	return results
}

// isAbort reports whether err means the caller gave up.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
