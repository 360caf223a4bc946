package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/mcphost/internal/config"
	"github.com/dusk-indust/mcphost/internal/dispatch"
	"github.com/dusk-indust/mcphost/internal/host"
	"github.com/dusk-indust/mcphost/internal/reasoning"
	"github.com/dusk-indust/mcphost/internal/servers"
	"github.com/dusk-indust/mcphost/internal/session"
	"github.com/dusk-indust/mcphost/internal/transcript"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	flags  *rootFlags
	stderr io.Writer
}

func loadApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	if err := config.LoadEnv(flags.envFile); err != nil {
		return nil, err
	}
	path := flags.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	if flags.plain {
		color.NoColor = true
	}

	stderr := cmd.ErrOrStderr()
	logger := host.SetupLogger(cfg.Logging, stderr)
	logger.Debug("config loaded", "path", path, "servers", len(cfg.Servers))
	return &app{cfg: cfg, logger: logger, flags: flags, stderr: stderr}, nil
}

func (a *app) registry() *session.Registry {
	dialer := session.NewCommandDialer(servers.Implementation("mcphost"), a.logger)
	return session.NewRegistry(dialer,
		session.WithConnectTimeout(a.cfg.Dispatch.ConnectTimeout),
		session.WithMaxParallel(a.cfg.Dispatch.MaxParallelConnects),
		session.WithLogger(a.logger),
	)
}

// startHost connects every configured server. With a nil gateway the host
// can list and inspect servers but not answer queries.
func (a *app) startHost(ctx context.Context, g reasoning.Gateway, extra ...host.Option) (*host.Host, func()) {
	var (
		d       *dispatch.Dispatcher
		cleanup []func()
	)
	if g != nil {
		opts := []dispatch.Option{
			dispatch.WithDecisionTemplate(a.cfg.Prompts.Decision),
			dispatch.WithSynthesisInstruction(a.cfg.Prompts.SynthesisInstruction),
			dispatch.WithToolTimeout(a.cfg.Dispatch.ToolTimeout),
			dispatch.WithLogger(a.logger),
		}
		if a.flags.verbose {
			r := dispatch.NewReporter(64)
			done := host.StreamEvents(r, a.stderr)
			opts = append(opts, dispatch.WithObserver(r.Emit))
			cleanup = append(cleanup, func() {
				r.Close()
				<-done
			})
		}
		d = dispatch.New(g, opts...)
	}

	opts := []host.Option{
		host.WithCatalogTimeout(a.cfg.Dispatch.CatalogTimeout),
		host.WithLogger(a.logger),
	}
	h := host.New(a.registry(), d, append(opts, extra...)...)
	h.Start(ctx, a.cfg.LaunchSpecs())

	return h, func() {
		h.Shutdown()
		for _, fn := range cleanup {
			fn()
		}
	}
}

func (a *app) openTranscript() (*transcript.Store, error) {
	if a.cfg.Transcript.Disabled {
		return nil, fmt.Errorf("transcript is disabled in the config")
	}
	return transcript.Open(a.cfg.Transcript.Path, a.logger)
}
