// Package addcmder provides the add command for storing free-text memories.
package addcmder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
	"github.com/paperquant/recall/pkg/memory"
)

type addCommander struct {
	kind       string
	date       string
	importance float64
	meta       []string
}

const addLongDesc string = `Store a free-text memory in the agent's namespace.

The memory is embedded and indexed for semantic retrieval. If the embedding
model is unavailable, the memory is stored without a vector and remains
reachable via keyword search.

Kinds: observation, decision, pattern, episodic

Examples:
  recall add "Tech stocks rallied on strong earnings"
  recall add "Fed held rates steady" --kind observation --date 2026-08-20
  recall add "Earnings beat" --importance 0.9 --meta symbol=NVDA`

const addShortDesc string = "Store a free-text memory"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.kind, "kind", "k", string(memory.KindObservation), "Memory kind")
	cmd.Flags().StringVar(&cmder.date, "date", "", "Event date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().Float64VarP(&cmder.importance, "importance", "i", 0.5, "Importance in [0,1]")
	cmd.Flags().StringArrayVarP(&cmder.meta, "meta", "m", nil, "Metadata entries as key=value (repeatable)")
	runtime.RegisterDataFlags(cmd)

	return cmd
}

func (c *addCommander) run(cmd *cobra.Command, content string) error {
	ctx := context.Background()

	eventDate, err := parseDate(c.date)
	if err != nil {
		return err
	}

	metadata, err := parseMeta(c.meta)
	if err != nil {
		return err
	}

	app, err := runtime.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := app.Recall.AddMemory(ctx, app.Namespace, memory.Kind(c.kind), content, eventDate, c.importance, metadata)
	if err != nil {
		return err
	}

	fmt.Printf("%s Stored %s memory %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(c.kind),
		cliui.KeyStyle.Render(id),
	)
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

func parseMeta(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	metadata := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q (expected key=value)", entry)
		}
		metadata[key] = value
	}
	return metadata, nil
}
