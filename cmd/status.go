package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show match-table totals and recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("runs")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.TierCounts(ctx)
		if err != nil {
			return eris.Wrap(err, "status: tier counts")
		}

		tiers := make([]int, 0, len(counts))
		var total int64
		for t, n := range counts {
			tiers = append(tiers, t)
			total += n
		}
		sort.Ints(tiers)

		fmt.Printf("Match table: %d rows\n", total)
		for _, t := range tiers {
			fmt.Printf("  tier %d: %d\n", t, counts[t])
		}

		runs, err := st.RecentRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status: recent runs")
		}

		if len(runs) > 0 {
			fmt.Println("Recent runs:")
		}
		for _, r := range runs {
			line := fmt.Sprintf("  %s %-8s started=%s sources=%d matched=%d unmatched=%d",
				r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04"), r.Sources, r.Matched, r.Unmatched)
			if r.Scope != "" {
				line += " scope=" + r.Scope
			}
			fmt.Println(line)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
