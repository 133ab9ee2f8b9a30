// Package memoryutils is the storage driver factory package.
package memoryutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/memory"
	"github.com/paperquant/recall/pkg/memory/postgres"
	"github.com/paperquant/recall/pkg/memory/sqlite"
)

type NewDriverOpts struct {
	ProviderType string

	// Target is the SQLite path or PostgreSQL connection string,
	// depending on the provider.
	Target string

	Logger *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (memory.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlite.NewDriver(sqlite.Config{DBPath: o.Target}, o.Logger)
	case "postgres":
		return postgres.NewDriver(ctx, o.Target, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
