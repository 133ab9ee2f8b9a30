package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/paperquant/recall/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RECALL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RECALL_STORAGE_TARGET, RECALL_EMBEDDING_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RECALL_STORAGE_TARGET, RECALL_AGENT_NAMESPACE, etc.
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Agent
	v.SetDefault("agent.namespace", d.Agent.Namespace)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.target", d.Storage.Target)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.dimensions", d.VectorStore.Dimensions)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Search
	v.SetDefault("search.similarity_weight", d.Search.SimilarityWeight)
	v.SetDefault("search.recency_weight", d.Search.RecencyWeight)
	v.SetDefault("search.importance_weight", d.Search.ImportanceWeight)
	v.SetDefault("search.decay_days", d.Search.DecayDays)
	v.SetDefault("search.candidate_multiplier", d.Search.CandidateMultiplier)

	// Retention
	v.SetDefault("retention.pin_threshold", d.Retention.PinThreshold)
	v.SetDefault("retention.days", d.Retention.Days)

	// Cache
	v.SetDefault("cache.embedding_entries", d.Cache.EmbeddingEntries)
	v.SetDefault("cache.query_entries", d.Cache.QueryEntries)
	v.SetDefault("cache.query_ttl_seconds", d.Cache.QueryTTLSeconds)
}
