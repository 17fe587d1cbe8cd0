// Package vectorutils builds the configured vector.Driver.
package vectorutils

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/vector"
	"github.com/papercomputeco/presence/pkg/vector/chroma"
	"github.com/papercomputeco/presence/pkg/vector/qdrant"
	"github.com/papercomputeco/presence/pkg/vector/sqlitevec"
)

// ErrUnsupportedProvider is returned for an unknown vector_store.provider.
var ErrUnsupportedProvider = errors.New("unsupported vector store provider")

// Options selects and sizes the recall store.
type Options struct {
	Store      config.VectorStoreConfig
	Dimensions uint

	// DefaultPath is used as the sqlite-vec database when the store has no
	// target, normally knowledge.db in the presence directory.
	DefaultPath string

	Logger *slog.Logger
}

// NewVectorDriver opens the store named by o.Store.Provider.
func NewVectorDriver(o Options) (vector.Driver, error) {
	if o.Dimensions == 0 {
		return nil, errors.New("embedding.dimensions must be set to open the recall store")
	}

	switch provider := strings.ToLower(strings.TrimSpace(o.Store.Provider)); provider {
	case "sqlitevec", "sqlite-vec":
		path := o.Store.Target
		if path == "" {
			path = o.DefaultPath
		}
		if path == "" {
			return nil, errors.New("vector_store.target is required outside a presence directory")
		}
		return sqlitevec.NewDriver(sqlitevec.Config{DBPath: path, Dimensions: o.Dimensions}, o.Logger)

	case "qdrant":
		if o.Store.Target == "" {
			return nil, errors.New("vector_store.target is required for qdrant")
		}
		return qdrant.NewDriver(qdrant.Config{Target: o.Store.Target, Dimensions: o.Dimensions}, o.Logger)

	case "chroma":
		if o.Store.Target == "" {
			return nil, errors.New("vector_store.target is required for chroma")
		}
		return chroma.NewDriver(chroma.Config{URL: o.Store.Target}, o.Logger)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, o.Store.Provider)
	}
}
