// Package configcmder provides the config command for managing persistent
// recall configuration stored in the .recall/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent recall configuration.

Configuration is stored as config.toml in the .recall/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  agent.namespace,
  storage.provider, storage.target,
  vector_store.provider, vector_store.target, vector_store.dimensions,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  search.similarity_weight, search.recency_weight, search.importance_weight,
  search.decay_days, search.candidate_multiplier,
  retention.pin_threshold, retention.days,
  cache.embedding_entries, cache.query_entries, cache.query_ttl_seconds

Use subcommands to get, set, or list configuration values:
  recall config set <key> <value>    Set a configuration value
  recall config get <key>            Get a configuration value
  recall config list                 List all configuration values

Examples:
  recall config set storage.provider postgres
  recall config set embedding.model nomic-embed-text
  recall config get agent.namespace
  recall config list`

const configShortDesc string = "Manage persistent recall configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
