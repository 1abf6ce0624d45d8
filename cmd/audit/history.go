package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"kube-health-audit/internal/history"
)

const defaultHistoryLimit = 10

func newHistoryCmd(f *flags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent audit runs recorded for a cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			if cfg.ClusterName == "" {
				return fmt.Errorf("history: --cluster or cluster_name is required")
			}
			store, err := history.Open(cfg.HistoryPath(), cfg.History.Keep)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Recent(cmd.Context(), cfg.ClusterName, limit)
			if err != nil {
				return err
			}
			listHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Max runs to show")
	return cmd
}

func listHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit runs recorded yet.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %6.1f  %-9s  %3d critical  %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Score, e.Tier, e.CriticalFindings, e.ID)
	}
}
