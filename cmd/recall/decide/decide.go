// Package decidecmder provides the decide command for recording structured
// trading decisions and reviewing them later.
package decidecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
	"github.com/paperquant/recall/pkg/memory"
)

type decideCommander struct {
	action   string
	symbol   string
	price    float64
	quantity float64
	date     string
}

const decideLongDesc string = `Record a structured trading decision.

The decision is stored as a single decision memory whose metadata mirrors the
action, symbol, price, and quantity. Decisions carry a fixed importance of 0.8
so they survive retention sweeps.

Actions: buy, sell, hold

Examples:
  recall decide "Strong earnings and guidance" --action buy --symbol NVDA --price 475.50 --quantity 10
  recall decide "Overbought, taking profits" --action sell --symbol NVDA --price 512.00 --quantity 10
  recall decide outcome <id> profitable --pnl 365.00
  recall decide recent --days 7 --symbol NVDA`

const decideShortDesc string = "Record a trading decision"

func NewDecideCmd() *cobra.Command {
	cmder := &decideCommander{}

	cmd := &cobra.Command{
		Use:   "decide <reasoning>",
		Short: decideShortDesc,
		Long:  decideLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.action, "action", "a", "", "Trading action: buy, sell, or hold")
	cmd.Flags().StringVarP(&cmder.symbol, "symbol", "s", "", "Ticker symbol")
	cmd.Flags().Float64VarP(&cmder.price, "price", "p", 0, "Execution price")
	cmd.Flags().Float64VarP(&cmder.quantity, "quantity", "q", 0, "Quantity traded")
	cmd.Flags().StringVar(&cmder.date, "date", "", "Decision date (YYYY-MM-DD, defaults to today)")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("symbol")

	runtime.RegisterDataFlags(cmd)

	cmd.AddCommand(newOutcomeCmd())
	cmd.AddCommand(newRecentCmd())

	return cmd
}

func (c *decideCommander) run(cmd *cobra.Command, reasoning string) error {
	ctx := context.Background()

	date := time.Now().UTC()
	if c.date != "" {
		var err error
		date, err = time.Parse("2006-01-02", c.date)
		if err != nil {
			return fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", c.date, err)
		}
	}

	app, err := runtime.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := app.Recall.AddTradingDecision(ctx, app.Namespace, memory.TradingDecision{
		Date:      date,
		Action:    memory.Action(c.action),
		Symbol:    c.symbol,
		Reasoning: reasoning,
		Price:     c.price,
		Quantity:  c.quantity,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s Recorded %s %s decision %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(c.action),
		cliui.ValueStyle.Render(c.symbol),
		cliui.KeyStyle.Render(id),
	)
	return nil
}
