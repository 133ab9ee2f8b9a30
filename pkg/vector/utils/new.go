// Package vectorutils is the vector driver factory package.
package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/vector"
	"github.com/paperquant/recall/pkg/vector/chromem"
	"github.com/paperquant/recall/pkg/vector/linear"
	"github.com/paperquant/recall/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	Path         string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "linear":
		return linear.NewDriver(o.Logger), nil
	case "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Path,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chromem":
		return chromem.NewDriver(chromem.Config{
			Path: o.Path,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
