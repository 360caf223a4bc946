package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFile    string
	verbose    bool
	plain      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "mcphost",
		Short: "Answer questions with tools from MCP servers",
		Long: "mcphost connects to the MCP servers declared in its config, lets a reasoning " +
			"engine pick one tool per question, runs it and answers with the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default $MCPHOST_CONFIG or <user config dir>/mcphost/mcphost.yaml)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "KEY=VALUE file loaded before the config")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level and print dispatch progress")
	pf.BoolVar(&flags.plain, "plain", false, "disable colored output")

	rootCmd.AddCommand(
		newChatCmd(flags),
		newToolsCmd(flags),
		newInspectCmd(flags),
		newServeCmd(),
		newHistoryCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}
