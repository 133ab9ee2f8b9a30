// Package runtime assembles a Recall instance from the resolved configuration
// for CLI commands. Each command opens the app, runs, and closes it.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/config"
	"github.com/paperquant/recall/pkg/dotdir"
	embeddingutils "github.com/paperquant/recall/pkg/embeddings/utils"
	"github.com/paperquant/recall/pkg/logger"
	memoryutils "github.com/paperquant/recall/pkg/memory/utils"
	"github.com/paperquant/recall/pkg/recall"
	"github.com/paperquant/recall/pkg/search"
	vectorutils "github.com/paperquant/recall/pkg/vector/utils"
)

const (
	memoriesFile = "memories.db"
	vectorsFile  = "vectors.db"
)

// DataFlags defines the storage and embedding override flags shared by every
// command that opens the memory layer.
var DataFlags = config.FlagSet{
	config.FlagStorageProvider: {Name: "storage-provider", ViperKey: "storage.provider", Description: "Memory store provider (sqlite, postgres)"},
	config.FlagStorageTarget:   {Name: "storage-target", ViperKey: "storage.target", Description: "SQLite path or PostgreSQL connection string"},
	config.FlagVectorProvider:  {Name: "vector-provider", ViperKey: "vector_store.provider", Description: "Vector index provider (sqlitevec, chromem, linear)"},
	config.FlagVectorTarget:    {Name: "vector-target", ViperKey: "vector_store.target", Description: "Vector index path"},
	config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama)"},
	config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding endpoint URL"},
	config.FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
}

var dataFlagKeys = []string{
	config.FlagStorageProvider,
	config.FlagStorageTarget,
	config.FlagVectorProvider,
	config.FlagVectorTarget,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
}

// RegisterDataFlags adds the shared override flags to a command. Open binds
// them into the viper precedence chain (flag > env > config file > default).
func RegisterDataFlags(cmd *cobra.Command) {
	targets := make([]string, len(dataFlagKeys))
	for i, key := range dataFlagKeys {
		config.AddStringFlag(cmd, DataFlags, key, &targets[i])
	}
}

// App bundles the opened Recall instance with the resolved settings a
// command needs.
type App struct {
	Recall    *recall.Recall
	Namespace string
	Logger    *zap.Logger
}

// Open resolves configuration (flags > env > config.toml > defaults), builds
// the storage and vector drivers, and assembles a Recall instance.
func Open(ctx context.Context, cmd *cobra.Command) (*App, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")
	namespace, _ := cmd.Flags().GetString("namespace")

	log := logger.NewLogger(debug)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, DataFlags, dataFlagKeys)

	if namespace == "" {
		namespace = v.GetString("agent.namespace")
	}

	ddm := dotdir.NewManager()
	dataDir, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}

	storageTarget := v.GetString("storage.target")
	if storageTarget == "" {
		if v.GetString("storage.provider") == "postgres" {
			return nil, fmt.Errorf("storage.target is required for the postgres provider")
		}
		storageTarget = filepath.Join(dataDir, memoriesFile)
	}

	store, err := memoryutils.NewDriver(ctx, &memoryutils.NewDriverOpts{
		ProviderType: v.GetString("storage.provider"),
		Target:       storageTarget,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	vectorTarget := v.GetString("vector_store.target")
	if vectorTarget == "" {
		vectorTarget = filepath.Join(dataDir, vectorsFile)
	}

	index, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: v.GetString("vector_store.provider"),
		Path:         vectorTarget,
		Dimensions:   v.GetUint("vector_store.dimensions"),
		Logger:       log,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	embedder, err := embeddingutils.NewService(&embeddingutils.NewServiceOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		Logger:       log,
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	r, err := recall.New(ctx, recall.Config{
		Store:    store,
		Index:    index,
		Embedder: embedder,
		Weights: search.Weights{
			Similarity: v.GetFloat64("search.similarity_weight"),
			Recency:    v.GetFloat64("search.recency_weight"),
			Importance: v.GetFloat64("search.importance_weight"),
		},
		DecayDays:           v.GetFloat64("search.decay_days"),
		CandidateMultiplier: int(v.GetUint("search.candidate_multiplier")),
		PinThreshold:        v.GetFloat64("retention.pin_threshold"),
		EmbeddingCacheSize:  int(v.GetUint("cache.embedding_entries")),
		QueryCacheSize:      int(v.GetUint("cache.query_entries")),
		QueryCacheTTL:       time.Duration(v.GetUint("cache.query_ttl_seconds")) * time.Second,
	}, log)
	if err != nil {
		_ = embedder.Close()
		_ = index.Close()
		_ = store.Close()
		return nil, err
	}

	return &App{
		Recall:    r,
		Namespace: namespace,
		Logger:    log,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if err := a.Recall.Close(); err != nil {
		a.Logger.Warn("closing recall", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
