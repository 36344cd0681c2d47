package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/vector"
	"github.com/engramchat/engram/pkg/vector/chromem"
	"github.com/engramchat/engram/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	Path         string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Path,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chromem":
		return chromem.NewChromemDriver(chromem.Config{
			Path: o.Path,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
