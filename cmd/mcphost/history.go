package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/mcphost/internal/transcript"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			store, err := a.openTranscript()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return transcript.WriteJSON(cmd.OutOrStdout(), entries)
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of queries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printHistory(w io.Writer, entries []transcript.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No queries recorded.")
		return
	}
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		tool := "no tool"
		if e.Server != "" {
			tool = e.Server + "/" + e.Tool
		}
		fmt.Fprintf(w, "%s  %s  (%s, %s)\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Query, tool, e.Duration.Round(time.Millisecond))
		for _, line := range strings.Split(e.Response, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
