package decidecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
)

const outcomeLongDesc string = `Annotate a decision with its realized outcome.

The outcome and profit/loss are recorded in the decision memory's metadata
once the result of the trade is known. The decision content itself is never
modified.

Examples:
  recall decide outcome 7f3a... profitable --pnl 365.00
  recall decide outcome 7f3a... "stopped out" --pnl -120.50`

const outcomeShortDesc string = "Record a decision's outcome"

func newOutcomeCmd() *cobra.Command {
	var pnl float64

	cmd := &cobra.Command{
		Use:   "outcome <id> <outcome>",
		Short: outcomeShortDesc,
		Long:  outcomeLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Recall.RecordOutcome(ctx, app.Namespace, args[0], args[1], pnl); err != nil {
				return err
			}

			fmt.Printf("%s Recorded outcome %s for %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(args[1]),
				cliui.KeyStyle.Render(args[0]),
			)
			return nil
		},
	}

	cmd.Flags().Float64Var(&pnl, "pnl", 0, "Realized profit or loss")
	runtime.RegisterDataFlags(cmd)

	return cmd
}
