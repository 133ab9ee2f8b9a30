// Package sweepcmder provides the sweep command for retention cleanup.
package sweepcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paperquant/recall/cmd/recall/runtime"
	"github.com/paperquant/recall/pkg/cliui"
	"github.com/paperquant/recall/pkg/config"
)

const sweepLongDesc string = `Remove old, low-importance memories.

Memories older than the cutoff are deleted unless their importance meets the
retention pin threshold (0.7 by default). Trading decisions are stored at
importance 0.8 and therefore survive sweeps.

Examples:
  recall sweep
  recall sweep --days 30`

const sweepShortDesc string = "Remove old, low-importance memories"

func NewSweepCmd() *cobra.Command {
	var days uint

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: sweepShortDesc,
		Long:  sweepLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			app, err := runtime.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var removed int
			err = cliui.Step(os.Stdout, fmt.Sprintf("Sweeping memories older than %d days", days), func() error {
				var err error
				removed, err = app.Recall.ClearOldMemories(ctx, app.Namespace, int(days))
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("  Removed %d memories\n", removed)
			return nil
		},
	}

	fs := config.FlagSet{
		config.FlagRetentionDays: {Name: "days", ViperKey: "retention.days", Description: "Delete memories older than this many days"},
	}
	config.AddUintFlag(cmd, fs, config.FlagRetentionDays, &days)
	runtime.RegisterDataFlags(cmd)

	return cmd
}
