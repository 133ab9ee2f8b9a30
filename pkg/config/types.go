package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Agent       AgentConfig       `toml:"agent"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Search      SearchConfig      `toml:"search"`
	Retention   RetentionConfig   `toml:"retention"`
	Cache       CacheConfig       `toml:"cache"`
}

// AgentConfig holds agent identity settings.
type AgentConfig struct {
	// Namespace is the default namespace for CLI operations.
	Namespace string `toml:"namespace,omitempty"`
}

// StorageConfig holds memory store settings.
type StorageConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Target is the SQLite path or PostgreSQL connection string. When
	// empty the default path under the .recall/ directory is used.
	Target string `toml:"target,omitempty"`
}

// VectorStoreConfig holds similarity index settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// SearchConfig holds hybrid ranking settings.
type SearchConfig struct {
	SimilarityWeight    float64 `toml:"similarity_weight,omitempty"`
	RecencyWeight       float64 `toml:"recency_weight,omitempty"`
	ImportanceWeight    float64 `toml:"importance_weight,omitempty"`
	DecayDays           float64 `toml:"decay_days,omitempty"`
	CandidateMultiplier uint    `toml:"candidate_multiplier,omitempty"`
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	// PinThreshold exempts memories at or above this importance from sweeps.
	PinThreshold float64 `toml:"pin_threshold,omitempty"`

	// Days is the default sweep age for the CLI.
	Days uint `toml:"days,omitempty"`
}

// CacheConfig holds read-side cache sizing.
type CacheConfig struct {
	EmbeddingEntries uint `toml:"embedding_entries,omitempty"`
	QueryEntries     uint `toml:"query_entries,omitempty"`
	QueryTTLSeconds  uint `toml:"query_ttl_seconds,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) *uint, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			p := get(c)
			if *p == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*p), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = uint(n)
			return nil
		},
	}
}

func floatKey(get func(c *Config) *float64, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			p := get(c)
			if *p == 0 {
				return ""
			}
			return strconv.FormatFloat(*p, 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"agent.namespace": {
		get: func(c *Config) string { return c.Agent.Namespace },
		set: func(c *Config, v string) error { c.Agent.Namespace = v; return nil },
	},
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.target": {
		get: func(c *Config) string { return c.Storage.Target },
		set: func(c *Config, v string) error { c.Storage.Target = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.dimensions": uintKey(func(c *Config) *uint { return &c.VectorStore.Dimensions }, "vector_store.dimensions"),
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions":        uintKey(func(c *Config) *uint { return &c.Embedding.Dimensions }, "embedding.dimensions"),
	"search.similarity_weight":    floatKey(func(c *Config) *float64 { return &c.Search.SimilarityWeight }, "search.similarity_weight"),
	"search.recency_weight":       floatKey(func(c *Config) *float64 { return &c.Search.RecencyWeight }, "search.recency_weight"),
	"search.importance_weight":    floatKey(func(c *Config) *float64 { return &c.Search.ImportanceWeight }, "search.importance_weight"),
	"search.decay_days":           floatKey(func(c *Config) *float64 { return &c.Search.DecayDays }, "search.decay_days"),
	"search.candidate_multiplier": uintKey(func(c *Config) *uint { return &c.Search.CandidateMultiplier }, "search.candidate_multiplier"),
	"retention.pin_threshold":     floatKey(func(c *Config) *float64 { return &c.Retention.PinThreshold }, "retention.pin_threshold"),
	"retention.days":              uintKey(func(c *Config) *uint { return &c.Retention.Days }, "retention.days"),
	"cache.embedding_entries":     uintKey(func(c *Config) *uint { return &c.Cache.EmbeddingEntries }, "cache.embedding_entries"),
	"cache.query_entries":         uintKey(func(c *Config) *uint { return &c.Cache.QueryEntries }, "cache.query_entries"),
	"cache.query_ttl_seconds":     uintKey(func(c *Config) *uint { return &c.Cache.QueryTTLSeconds }, "cache.query_ttl_seconds"),
}
