package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mcphost/internal/host"
	"github.com/dusk-indust/mcphost/internal/reasoning"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive question loop (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *rootFlags) error {
	a, err := loadApp(cmd, flags)
	if err != nil {
		return err
	}
	g, err := reasoning.New(a.cfg.ReasoningSettings())
	if err != nil {
		return err
	}

	var extra []host.Option
	if !a.cfg.Transcript.Disabled {
		store, err := a.openTranscript()
		if err != nil {
			a.logger.Warn("transcript unavailable", "error", err)
		} else {
			defer store.Close()
			extra = append(extra, host.WithRecorder(store))
		}
	}

	ctx := cmd.Context()
	h, shutdown := a.startHost(ctx, g, extra...)
	defer shutdown()
	defer logUsage(a, g)

	err = h.ChatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), host.NewLabels(flags.plain))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logUsage(a *app, g reasoning.Gateway) {
	if u, ok := reasoning.UsageOf(g); ok && u.Calls > 0 {
		a.logger.Info("reasoning usage",
			"calls", u.Calls,
			"prompt_tokens", u.PromptTokens,
			"completion_tokens", u.CompletionTokens,
			"total_tokens", u.TotalTokens,
		)
	}
}
