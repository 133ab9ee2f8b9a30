package config

const (
	defaultNamespace = "default"

	defaultStorageProvider = "sqlite"

	defaultVectorProvider = "sqlitevec"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultSimilarityWeight    = 0.5
	defaultRecencyWeight       = 0.2
	defaultImportanceWeight    = 0.3
	defaultDecayDays           = 30.0
	defaultCandidateMultiplier = 4

	defaultPinThreshold  = 0.7
	defaultRetentionDays = 90

	defaultEmbeddingEntries = 4096
	defaultQueryEntries     = 512
	defaultQueryTTLSeconds  = 30
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Agent: AgentConfig{
			Namespace: defaultNamespace,
		},
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Dimensions: defaultEmbeddingDimensions,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Search: SearchConfig{
			SimilarityWeight:    defaultSimilarityWeight,
			RecencyWeight:       defaultRecencyWeight,
			ImportanceWeight:    defaultImportanceWeight,
			DecayDays:           defaultDecayDays,
			CandidateMultiplier: defaultCandidateMultiplier,
		},
		Retention: RetentionConfig{
			PinThreshold: defaultPinThreshold,
			Days:         defaultRetentionDays,
		},
		Cache: CacheConfig{
			EmbeddingEntries: defaultEmbeddingEntries,
			QueryEntries:     defaultQueryEntries,
			QueryTTLSeconds:  defaultQueryTTLSeconds,
		},
	}
}
