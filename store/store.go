// Package store persists entities as their raw attribute bag. Encryptable
// fields are written exactly as held in memory, so the backing store only
// ever sees ciphertext for them.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hengadev/dbcrypt"
)

// Repository saves and loads entities of any type.
type Repository interface {
	Save(ctx context.Context, e *dbcrypt.Entity) error
	Load(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) (*dbcrypt.Entity, error)
	Delete(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) error
	List(ctx context.Context, typ *dbcrypt.EntityType) ([]uuid.UUID, error)
}

// ReencryptAll loads every entity of typ, re-encrypts stale fields under the
// cipher's current key and saves the entities that changed. It returns the
// number of entities and fields rewritten.
func ReencryptAll(ctx context.Context, repo Repository, typ *dbcrypt.EntityType) (entities, fields int, err error) {
	ids, err := repo.List(ctx, typ)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		e, err := repo.Load(ctx, typ, id)
		if err != nil {
			return entities, fields, err
		}
		n, err := e.Reencrypt(ctx)
		if err != nil {
			return entities, fields, fmt.Errorf("entity %s: %w", id, err)
		}
		if n == 0 {
			continue
		}
		if err := repo.Save(ctx, e); err != nil {
			return entities, fields, err
		}
		entities++
		fields += n
	}
	return entities, fields, nil
}

func encodeBag(e *dbcrypt.Entity) ([]byte, error) {
	data, err := json.Marshal(e.RawAttributes())
	if err != nil {
		return nil, fmt.Errorf("%w: encode attributes of %s %s: %w", dbcrypt.ErrOperationFailed, e.Type().Name(), e.ID(), err)
	}
	return data, nil
}

func decodeBag(typ *dbcrypt.EntityType, id uuid.UUID, data []byte) (*dbcrypt.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode attributes of %s %s: %w", dbcrypt.ErrOperationFailed, typ.Name(), id, err)
	}
	for k, v := range raw {
		raw[k] = normalize(v)
	}
	return typ.Hydrate(id, raw), nil
}

// normalize turns JSON numbers back into int64 when integral, float64 otherwise.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

func notFound(typ *dbcrypt.EntityType, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", dbcrypt.ErrNotFound, typ.Name(), id)
}
