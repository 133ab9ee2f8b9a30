// Package patterncmder provides the pattern command for recording and
// listing aggregated market patterns.
package patterncmder

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
)

var descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)

const patternLongDesc string = `Record and list aggregated market patterns.

Each distinct pattern description maps to one aggregate whose occurrence
count and success rate evolve as observations arrive. Observing the same
description again updates the aggregate rather than creating a duplicate.

Examples:
  recall pattern observe "Tech stocks rally after earnings beats" --success
  recall pattern observe "Tech stocks rally after earnings beats" --failure
  recall pattern list`

const patternShortDesc string = "Record and list market patterns"

func NewPatternCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: patternShortDesc,
		Long:  patternLongDesc,
	}

	cmd.AddCommand(newObserveCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func newObserveCmd() *cobra.Command {
	var success bool
	var failure bool
	var date string

	cmd := &cobra.Command{
		Use:   "observe <description>",
		Short: "Record one observation of a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if success == failure {
				return fmt.Errorf("exactly one of --success or --failure is required")
			}

			observed := time.Now().UTC()
			if date != "" {
				var err error
				observed, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", date, err)
				}
			}

			ctx := context.Background()
			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := app.Recall.ObservePattern(ctx, app.Namespace, args[0], success, observed)
			if err != nil {
				return err
			}

			fmt.Printf("%s Observed pattern %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(id))
			return nil
		},
	}

	cmd.Flags().BoolVar(&success, "success", false, "The pattern played out")
	cmd.Flags().BoolVar(&failure, "failure", false, "The pattern did not play out")
	cmd.Flags().StringVar(&date, "date", "", "Observation date (YYYY-MM-DD, defaults to today)")
	runtime.RegisterDataFlags(cmd)

	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List aggregated patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			patterns, err := app.Recall.Patterns(ctx, app.Namespace)
			if err != nil {
				return err
			}

			if len(patterns) == 0 {
				fmt.Println(cliui.DimStyle.Render("No patterns recorded."))
				return nil
			}

			for _, p := range patterns {
				fmt.Printf("%s\n", descStyle.Render(p.Description))
				fmt.Printf("  %s\n", cliui.DimStyle.Render(fmt.Sprintf(
					"observed %d times, %.0f%% success, last %s",
					p.OccurrenceCount, p.SuccessRate*100, p.LastObserved.Format("2006-01-02"),
				)))
			}
			return nil
		},
	}

	runtime.RegisterDataFlags(cmd)

	return cmd
}
