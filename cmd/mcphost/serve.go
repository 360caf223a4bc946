package main

import (
	"github.com/spf13/cobra"

	"github.com/dusk-indust/mcphost/internal/servers"
	"github.com/dusk-indust/mcphost/internal/servers/calc"
	"github.com/dusk-indust/mcphost/internal/servers/filesys"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a bundled MCP server over stdio",
	}
	cmd.AddCommand(newServeFilesysCmd(), newServeCalcCmd())
	return cmd
}

func newServeFilesysCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "filesys",
		Short: "Serve file tools confined to a root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := filesys.NewService(root)
			if err != nil {
				return err
			}
			return servers.RunStdio(cmd.Context(), filesys.NewServer(svc))
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory the tools may touch")
	return cmd
}

func newServeCalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calc",
		Short: "Serve the demo add tool, resources and prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return servers.RunStdio(cmd.Context(), calc.NewServer())
		},
	}
}
