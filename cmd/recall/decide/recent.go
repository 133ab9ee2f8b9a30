package decidecmder

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
	"github.com/paperquant/recall/pkg/utils"
)

var (
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	symbolStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

const recentLongDesc string = `List recent trading decisions, newest first.

Examples:
  recall decide recent
  recall decide recent --days 30
  recall decide recent --symbol NVDA`

const recentShortDesc string = "List recent trading decisions"

func newRecentCmd() *cobra.Command {
	var days int
	var symbol string

	cmd := &cobra.Command{
		Use:   "recent",
		Short: recentShortDesc,
		Long:  recentLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			decisions, err := app.Recall.RecentDecisions(ctx, app.Namespace, days, symbol)
			if err != nil {
				return err
			}

			if len(decisions) == 0 {
				fmt.Println(cliui.DimStyle.Render("No recent decisions."))
				return nil
			}

			for _, d := range decisions {
				action, _ := d.Metadata["action"].(string)
				sym, _ := d.Metadata["symbol"].(string)

				fmt.Printf("%s  %s %s  %s\n",
					cliui.DimStyle.Render(d.EventDate.Format("2006-01-02")),
					actionStyle.Render(action),
					symbolStyle.Render(sym),
					cliui.DimStyle.Render(d.ID),
				)
				fmt.Printf("  %s\n", utils.Truncate(d.Content, 120))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Look back this many days")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Restrict to one ticker symbol")
	runtime.RegisterDataFlags(cmd)

	return cmd
}
