package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var warnsCmd = &cobra.Command{
	Use:   "warns [user-id]",
	Short: "Print warning counts from the ledger",
	Long: `Reads the warning ledger (Redis when --redis-addr is set, the warnings
file otherwise). With a user ID, prints that user's count; without one,
prints every user with at least one warning, highest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rdb := connectRedis(ctx, cfg, logger)
		if rdb != nil {
			defer rdb.Close()
		}
		ledger := openLedger(ctx, cfg, rdb, logger)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			fmt.Fprintf(out, "%s has %d warning(s).\n", args[0], ledger.Count(args[0]))
			return nil
		}

		type entry struct {
			user  string
			count int
		}
		var entries []entry
		for user, n := range ledger.Snapshot() {
			if n > 0 {
				entries = append(entries, entry{user, n})
			}
		}
		slices.SortFunc(entries, func(a, b entry) int {
			if c := cmp.Compare(b.count, a.count); c != 0 {
				return c
			}
			return cmp.Compare(a.user, b.user)
		})
		for _, e := range entries {
			fmt.Fprintf(out, "%-20s %d\n", e.user, e.count)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no warnings recorded")
		}
		return nil
	},
}
