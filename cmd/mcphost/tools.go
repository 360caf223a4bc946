package main

import (
	"github.com/spf13/cobra"

	"github.com/dusk-indust/mcphost/internal/host"
)

func newToolsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools of every ready server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			h, shutdown := a.startHost(cmd.Context(), nil)
			defer shutdown()

			host.PrintCatalog(cmd.OutOrStdout(), h.Catalog(cmd.Context()))
			return nil
		},
	}
}

func newInspectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show connection state, tools, resources and prompts per server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			h, shutdown := a.startHost(cmd.Context(), nil)
			defer shutdown()

			host.PrintInspection(cmd.OutOrStdout(), h.Inspect(cmd.Context()))
			return nil
		},
	}
}
