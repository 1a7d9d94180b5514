package dbcrypt

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hengadev/dbcrypt/attribute"
)

// EntityType binds a schema to its encryptable fields and a cipher. It builds
// the pipeline shared by every entity of the type and is safe for concurrent use.
type EntityType struct {
	schema      *attribute.Schema
	pipeline    *attribute.Pipeline
	interceptor *Interceptor
	transformer *Transformer
}

// NewEntityType validates the configuration and installs the interceptor into
// a fresh copy of the default pipeline.
//
// An encryptable field that is also enum, class or JSON cast, or that has a set
// mutator, is rejected with ErrInvalidConfiguration unless WithCastBypass is given.
func NewEntityType(schema *attribute.Schema, encryptable []string, cipher Cipher, options ...Option) (*EntityType, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: schema is required", ErrInvalidConfiguration)
	}
	transformer, err := NewTransformer(cipher, options...)
	if err != nil {
		return nil, err
	}
	interceptor, err := NewInterceptor(schema.Name(), encryptable, transformer, options...)
	if err != nil {
		return nil, err
	}
	if err := interceptor.Validate(schema); err != nil {
		return nil, err
	}
	pipeline := attribute.NewPipeline()
	if err := interceptor.Install(pipeline); err != nil {
		return nil, err
	}
	return &EntityType{
		schema:      schema,
		pipeline:    pipeline,
		interceptor: interceptor,
		transformer: transformer,
	}, nil
}

func (t *EntityType) Name() string { return t.schema.Name() }

func (t *EntityType) Schema() *attribute.Schema { return t.schema }

func (t *EntityType) Pipeline() *attribute.Pipeline { return t.pipeline }

// Encryptable returns the encryptable fields in declaration order.
func (t *EntityType) Encryptable() []string { return t.interceptor.Fields() }

// IsEncryptable reports whether field is stored encrypted.
func (t *EntityType) IsEncryptable(field string) bool { return t.interceptor.IsEncryptable(field) }

// New creates an entity and writes values through the write path, so
// encryptable values end up encrypted in the bag.
func (t *EntityType) New(ctx context.Context, values map[string]any) (*Entity, error) {
	e := &Entity{Model: attribute.NewModel(t.schema, t.pipeline), typ: t}
	if err := e.Fill(ctx, values); err != nil {
		return nil, err
	}
	return e, nil
}

// Hydrate rebuilds an entity from raw storage values. Encryptable values are
// expected to be ciphertext already and are not encrypted again.
func (t *EntityType) Hydrate(id uuid.UUID, raw map[string]any) *Entity {
	return &Entity{Model: attribute.Hydrate(t.schema, t.pipeline, id, raw), typ: t}
}

// Entity is one instance of an EntityType. Get, Set, Fill, ToMap and
// MarshalJSON behave as on attribute.Model with encryption applied.
// An Entity is not safe for concurrent mutation.
type Entity struct {
	*attribute.Model
	typ *EntityType
}

func (e *Entity) Type() *EntityType { return e.typ }

// Inspect reports what the read path's decrypt step does with the stored value
// of key, without running accessors or casts.
func (e *Entity) Inspect(ctx context.Context, key string) Result {
	raw, _ := e.Raw(key)
	return e.typ.interceptor.inspect(ctx, key, raw)
}

// Reencrypt rewrites every encryptable value that decrypts successfully and is
// not already sealed with the cipher's current key. Values that cannot be
// decrypted are left untouched. Unlike Set, a failed encryption is returned
// as an error and leaves the entity unchanged. It returns the number of
// fields rewritten.
func (e *Entity) Reencrypt(ctx context.Context) (int, error) {
	rotation, _ := e.typ.transformer.Cipher().(RotationAware)

	raw := e.RawAttributes()
	count := 0
	for _, field := range e.typ.interceptor.fields {
		stored, ok := raw[field]
		if !ok || isEmpty(stored) {
			continue
		}
		if s, isString := stored.(string); isString && rotation != nil && rotation.IsCurrent(s) {
			continue
		}
		plain := e.typ.interceptor.inspect(ctx, field, stored)
		if plain.Outcome != Transformed {
			continue
		}
		sealed := e.typ.transformer.encrypt(ctx, e.typ.Name(), field, plain.Value)
		if sealed.Outcome != Transformed {
			return 0, fmt.Errorf("reencrypt '%s': %w", field, sealed.Err)
		}
		raw[field] = sealed.Value
		count++
	}
	if count > 0 {
		e.Model = attribute.Hydrate(e.typ.schema, e.typ.pipeline, e.ID(), raw)
	}
	return count, nil
}
