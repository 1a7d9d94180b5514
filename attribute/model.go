package attribute

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Bag is the in-memory mapping of attribute name to stored value.
type Bag map[string]any

// Clone returns a shallow copy of the bag.
func (b Bag) Clone() Bag {
	return maps.Clone(b)
}

// Model is one entity instance: an identity plus an attribute bag read and
// written through a pipeline. A Model is not safe for concurrent mutation.
type Model struct {
	id       uuid.UUID
	schema   *Schema
	pipeline *Pipeline
	attrs    Bag
}

// NewModel returns an empty model with a fresh identity. A nil pipeline uses
// the default pipeline.
func NewModel(schema *Schema, pipeline *Pipeline) *Model {
	return Hydrate(schema, pipeline, uuid.New(), nil)
}

// Hydrate rebuilds a model from values read from storage. The values are
// copied into the bag as-is, without running the write path.
func Hydrate(schema *Schema, pipeline *Pipeline, id uuid.UUID, raw map[string]any) *Model {
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	attrs := make(Bag, len(raw))
	for k, v := range raw {
		attrs[k] = v
	}
	return &Model{
		id:       id,
		schema:   schema,
		pipeline: pipeline,
		attrs:    attrs,
	}
}

func (m *Model) ID() uuid.UUID { return m.id }

func (m *Model) Schema() *Schema { return m.schema }

func (m *Model) Pipeline() *Pipeline { return m.pipeline }

// Get returns the value of key as seen by application code.
func (m *Model) Get(ctx context.Context, key string) (any, error) {
	return m.pipeline.runGet(ctx, m, key)
}

// Set writes value to key through the write path.
func (m *Model) Set(ctx context.Context, key string, value any) error {
	return m.pipeline.runSet(ctx, m, key, value)
}

// Fill sets every entry of values, in key order, and stops at the first error.
func (m *Model) Fill(ctx context.Context, values map[string]any) error {
	keys := slices.Sorted(maps.Keys(values))
	for _, k := range keys {
		if err := m.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// ToMap returns a copy of the exportable attributes with every read transform
// applied. The bag itself is left untouched.
func (m *Model) ToMap(ctx context.Context) (map[string]any, error) {
	return m.pipeline.runExport(ctx, m)
}

// MarshalJSON encodes the ToMap output.
func (m *Model) MarshalJSON() ([]byte, error) {
	values, err := m.ToMap(context.Background())
	if err != nil {
		return nil, fmt.Errorf("export model '%s': %w", m.schema.Name(), err)
	}
	return json.Marshal(values)
}

// Raw returns the stored value of key, bypassing the pipeline.
func (m *Model) Raw(key string) (any, bool) {
	v, ok := m.attrs[key]
	return v, ok
}

// RawAttributes returns a copy of the bag as it would be persisted.
func (m *Model) RawAttributes() Bag {
	return m.attrs.Clone()
}

// Has reports whether key is present in the bag.
func (m *Model) Has(key string) bool {
	_, ok := m.attrs[key]
	return ok
}
