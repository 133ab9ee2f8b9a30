// Package searchcmder provides the search command for hybrid retrieval over
// stored memories.
package searchcmder

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/search"
	"github.com/paperquant/recall/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query string
	topK  int
	quiet bool

	semantic      bool
	kinds         []string
	symbol        string
	minImportance float64
}

const searchLongDesc string = `Search stored memories.

By default results are ranked by the hybrid score blending semantic
similarity, recency decay, and importance. Use --semantic to rank by
similarity alone.

If the embedding model is unavailable the search degrades to keyword
containment over memory content.

Use --quiet to output only memory IDs, one per line, for piping.

Examples:
  recall search "NVDA decisions"
  recall search "tech stock outlook" --top 10
  recall search "earnings surprises" --semantic
  recall search "rate decisions" --kind decision --min-importance 0.5
  recall search "chip demand" --symbol NVDA --quiet`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run(cmd)
		},
	}

	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory IDs, one per line (for piping)")
	cmd.Flags().BoolVar(&cmder.semantic, "semantic", false, "Rank by similarity alone")
	cmd.Flags().StringArrayVar(&cmder.kinds, "kind", nil, "Restrict to memory kinds (repeatable)")
	cmd.Flags().StringVarP(&cmder.symbol, "symbol", "s", "", "Restrict to one ticker symbol")
	cmd.Flags().Float64Var(&cmder.minImportance, "min-importance", 0, "Drop results below this importance")
	runtime.RegisterDataFlags(cmd)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command) error {
	ctx := context.Background()

	app, err := runtime.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	f := memory.Filters{MinImportance: c.minImportance}
	for _, k := range c.kinds {
		f.Kinds = append(f.Kinds, memory.Kind(k))
	}
	if c.symbol != "" {
		f.Metadata = map[string]any{"symbol": c.symbol}
	}

	results, err := c.search(ctx, app, f)
	if err != nil {
		return err
	}

	if c.quiet {
		for _, r := range results {
			fmt.Println(r.Memory.ID)
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Println(dimStyle.Render("No matching memories."))
		return nil
	}

	for i, r := range results {
		fmt.Printf("%s %s %s %s\n",
			rankStyle.Render(fmt.Sprintf("%d.", i+1)),
			idStyle.Render(r.Memory.ID),
			kindStyle.Render(string(r.Memory.Kind)),
			scoreStyle.Render(fmt.Sprintf("score=%.3f sim=%.3f recency=%.3f importance=%.2f",
				r.Score, r.Similarity, r.Recency, r.Memory.Importance)),
		)
		fmt.Printf("   %s  %s\n",
			dimStyle.Render(r.Memory.EventDate.Format("2006-01-02")),
			previewStyle.Render(utils.Truncate(r.Memory.Content, 120)),
		)
	}
	return nil
}

func (c *searchCommander) search(ctx context.Context, app *runtime.App, f memory.Filters) ([]search.Result, error) {
	if c.semantic {
		return app.Recall.SemanticSearch(ctx, app.Namespace, c.query, c.topK)
	}
	return app.Recall.HybridSearch(ctx, app.Namespace, c.query, c.topK, f)
}
