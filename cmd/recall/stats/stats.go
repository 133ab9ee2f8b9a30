// Package statscmder provides the stats command for namespace statistics.
package statscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
	"github.com/paperquant/recall/pkg/memory"
)

const statsLongDesc string = `Show statistics for the agent's namespace.

Statistics are derived from stored state at call time and always reflect
completed writes.

Examples:
  recall stats
  recall stats --namespace trader-01`

const statsShortDesc string = "Show namespace statistics"

func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Recall.Statistics(ctx, app.Namespace)
			if err != nil {
				return err
			}

			fmt.Printf("\n  %s %s\n\n",
				cliui.KeyStyle.Render("Namespace:"),
				cliui.ValueStyle.Render(app.Namespace),
			)
			fmt.Printf("  %-18s %d\n", "Total memories", stats.TotalMemories)
			for _, kind := range memory.Kinds {
				if count, ok := stats.CountsByKind[kind]; ok {
					fmt.Printf("    %-16s %d\n", kind, count)
				}
			}
			fmt.Printf("  %-18s %d\n", "Decisions", stats.TotalDecisions)
			fmt.Printf("  %-18s %d\n", "Patterns", stats.TotalPatterns)
			fmt.Printf("  %-18s %.3f\n\n", "Avg importance", stats.AvgImportance)

			return nil
		},
	}

	runtime.RegisterDataFlags(cmd)

	return cmd
}
