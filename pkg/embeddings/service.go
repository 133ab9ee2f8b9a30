package embeddings

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// state is the Service lifecycle: the model is constructed on first use and
// a failed construction is final for the process.
type state int

const (
	stateUninitialized state = iota
	stateReady
	stateFailed
)

// Factory constructs the backing Embedder. Invoked once, lazily, on the
// first Embed call.
type Factory func() (Embedder, error)

// Service wraps a lazily constructed Embedder with an explicit lifecycle
// (uninitialized, ready, failed). Model construction is deferred to the
// first Embed call so process startup never pays the load cost. If
// construction fails the Service enters fallback mode for the rest of the
// process: every subsequent Embed returns ErrUnavailable without retrying
// the expensive load, and the failure is logged once.
//
// The mutex also serializes calls against the shared model, so concurrent
// embedders queue rather than racing to double-initialize.
type Service struct {
	mu           sync.Mutex
	state        state
	embedder     Embedder
	factory      Factory
	modelVersion string
	timeout      time.Duration
	logger       *zap.Logger
}

// ServiceConfig holds configuration for the embedding Service.
type ServiceConfig struct {
	// Factory constructs the backing embedder on first use.
	Factory Factory

	// ModelVersion identifies the (provider, model) pair for cache keys.
	ModelVersion string

	// Timeout bounds each embed call. Defaults to 30s.
	Timeout time.Duration
}

// NewService creates an embedding Service in the uninitialized state.
func NewService(c ServiceConfig, logger *zap.Logger) *Service {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		factory:      c.Factory,
		modelVersion: c.ModelVersion,
		timeout:      timeout,
		logger:       logger,
	}
}

// Embed converts text into a vector. Returns ErrUnavailable when the Service
// is in fallback mode.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateFailed:
		return nil, ErrUnavailable
	case stateUninitialized:
		embedder, err := s.factory()
		if err != nil {
			s.state = stateFailed
			// Logged once; subsequent calls return ErrUnavailable silently.
			s.logger.Warn("embedding model failed to initialize, entering fallback mode",
				zap.String("model", s.modelVersion),
				zap.Error(err),
			)
			return nil, ErrUnavailable
		}
		s.embedder = embedder
		s.state = stateReady
		s.logger.Info("embedding model initialized",
			zap.String("model", s.modelVersion),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.embedder.Embed(ctx, text)
}

// Fallback reports whether the Service is in fallback mode.
func (s *Service) Fallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateFailed
}

// ModelVersion identifies the configured (provider, model) pair.
func (s *Service) ModelVersion() string {
	return s.modelVersion
}

// Close releases the backing embedder if it was ever constructed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedder != nil {
		err := s.embedder.Close()
		s.embedder = nil
		s.state = stateFailed
		return err
	}
	return nil
}
