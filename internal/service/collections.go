package service

import (
	"context"
	"fmt"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// NoOp is returned by Create when the collection already existed.
const NoOp = ""

// DefaultQuantile is the scalar quantization quantile used for dense vectors.
const DefaultQuantile = 0.99

// SpecFor builds the collection layout for a dense embedder. When quantize is
// set the dense space is compressed to int8 with the default quantile.
func SpecFor(dense domain.DenseEmbedder, quantize bool) domain.CollectionSpec {
	spec := domain.CollectionSpec{DenseSize: dense.Dimension(), Distance: "Cosine"}
	if quantize {
		spec.Quantization = &domain.Quantization{Type: "int8", Quantile: DefaultQuantile, AlwaysRAM: false}
	}
	return spec
}

// CollectionManager provisions collections. It never drops data unless asked
// to through Delete or Recreate.
type CollectionManager struct {
	store domain.VectorStore
	spec  domain.CollectionSpec
}

func NewCollectionManager(store domain.VectorStore, spec domain.CollectionSpec) *CollectionManager {
	return &CollectionManager{store: store, spec: spec}
}

// Create provisions name with a dense and a sparse space. It returns name when
// the collection was created and NoOp when it already existed.
func (m *CollectionManager) Create(ctx context.Context, name string) (string, error) {
	if name == "" {
		return NoOp, fmt.Errorf("%w: empty collection name", domain.ErrInvalidInput)
	}
	exists, err := m.store.CollectionExists(ctx, name)
	if err != nil {
		return NoOp, fmt.Errorf("check collection %q: %w", name, err)
	}
	if exists {
		logger.Debug("Collection %s already exists", name)
		return NoOp, nil
	}
	if err := m.store.CreateCollection(ctx, name, m.spec); err != nil {
		// lost a race with another creator
		if exists, _ := m.store.CollectionExists(ctx, name); exists {
			return NoOp, nil
		}
		return NoOp, err
	}
	logger.Info("Created collection %s (dense size %d)", name, m.spec.DenseSize)
	return name, nil
}

func (m *CollectionManager) Exists(ctx context.Context, name string) (bool, error) {
	return m.store.CollectionExists(ctx, name)
}

// Delete drops name and all of its points.
func (m *CollectionManager) Delete(ctx context.Context, name string) error {
	if err := m.store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	logger.Info("Deleted collection %s", name)
	return nil
}

// Recreate drops name if present and provisions it again, empty.
func (m *CollectionManager) Recreate(ctx context.Context, name string) error {
	exists, err := m.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", name, err)
	}
	if exists {
		if err := m.Delete(ctx, name); err != nil {
			return err
		}
	}
	_, err = m.Create(ctx, name)
	return err
}
