// Package recallcmder
package recallcmder

import (
	"github.com/spf13/cobra"

	"github.com/paperquant/recall/pkg/utils"

	addcmder "github.com/paperquant/recall/cmd/recall/add"
	configcmder "github.com/paperquant/recall/cmd/recall/config"
	decidecmder "github.com/paperquant/recall/cmd/recall/decide"
	initcmder "github.com/paperquant/recall/cmd/recall/init"
	patterncmder "github.com/paperquant/recall/cmd/recall/pattern"
	searchcmder "github.com/paperquant/recall/cmd/recall/search"
	statscmder "github.com/paperquant/recall/cmd/recall/stats"
	sweepcmder "github.com/paperquant/recall/cmd/recall/sweep"
	versioncmder "github.com/paperquant/recall/cmd/recall/version"
)

const recallLongDesc string = `Recall is persistent memory for trading agents.

Record observations and decisions during trading sessions:
  recall add          Store a free-text memory
  recall decide       Record a structured trading decision
  recall search       Hybrid search over stored memories
  recall stats        Show namespace statistics`

const recallShortDesc string = "Recall - Agent Memory"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recall",
		Short:   recallShortDesc,
		Long:    recallLongDesc,
		Version: utils.Version,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .recall/ config directory")
	cmd.PersistentFlags().StringP("namespace", "n", "", "Agent namespace (defaults to agent.namespace from config)")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(decidecmder.NewDecideCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(patterncmder.NewPatternCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(sweepcmder.NewSweepCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
