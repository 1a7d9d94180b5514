package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/attribute"
)

func newPatients(t *testing.T, cipher dbcrypt.Cipher) *dbcrypt.EntityType {
	t.Helper()
	schema, err := attribute.NewSchema("patient",
		attribute.WithCast("age", attribute.CastInt),
		attribute.WithCast("visits", attribute.CastInt),
		attribute.WithCast("tags", attribute.CastJSON),
	)
	require.NoError(t, err)
	typ, err := dbcrypt.NewEntityType(schema, []string{"ssn", "age"}, cipher)
	require.NoError(t, err)
	return typ
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "entities.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	patients := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	s := openTestSQLite(t)

	p, err := patients.New(ctx, map[string]any{
		"ssn":    "123-45-6789",
		"age":    42,
		"visits": 3,
		"name":   "Ada",
		"tags":   []any{"vip"},
		"notes":  nil,
	})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))

	column, err := s.RawColumn(ctx, patients, p.ID())
	require.NoError(t, err)
	assert.NotContains(t, column, "123-45-6789")
	assert.Contains(t, column, `"name":"Ada"`)

	loaded, err := s.Load(ctx, patients, p.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), loaded.ID())

	storedSSN, _ := p.Raw("ssn")
	loadedSSN, _ := loaded.Raw("ssn")
	assert.Equal(t, storedSSN, loadedSSN)

	want, err := p.ToMap(ctx)
	require.NoError(t, err)
	got, err := loaded.ToMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ssn, err := loaded.Get(ctx, "ssn")
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", ssn)

	visits, _ := loaded.Raw("visits")
	assert.Equal(t, int64(3), visits)
}

func TestSQLiteSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	patients := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	s := openTestSQLite(t)

	p, err := patients.New(ctx, map[string]any{"ssn": "111-11-1111"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))
	require.NoError(t, p.Set(ctx, "ssn", "222-22-2222"))
	require.NoError(t, s.Save(ctx, p))

	loaded, err := s.Load(ctx, patients, p.ID())
	require.NoError(t, err)
	ssn, err := loaded.Get(ctx, "ssn")
	require.NoError(t, err)
	assert.Equal(t, "222-22-2222", ssn)

	ids, err := s.List(ctx, patients)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID()}, ids)
}

func TestSQLiteNotFound(t *testing.T) {
	ctx := context.Background()
	patients := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	s := openTestSQLite(t)

	_, err := s.Load(ctx, patients, uuid.New())
	assert.ErrorIs(t, err, dbcrypt.ErrNotFound)

	err = s.Delete(ctx, patients, uuid.New())
	assert.ErrorIs(t, err, dbcrypt.ErrNotFound)

	p, err := patients.New(ctx, map[string]any{"ssn": "123"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))
	require.NoError(t, s.Delete(ctx, patients, p.ID()))
	_, err = s.Load(ctx, patients, p.ID())
	assert.ErrorIs(t, err, dbcrypt.ErrNotFound)
}

func TestSQLiteWrongKeyPassesThrough(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	writer := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	p, err := writer.New(ctx, map[string]any{"ssn": "123-45-6789"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))
	sealed, _ := p.Raw("ssn")

	reader := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	loaded, err := s.Load(ctx, reader, p.ID())
	require.NoError(t, err)
	got, err := loaded.Get(ctx, "ssn")
	require.NoError(t, err)
	assert.Equal(t, sealed, got)
}

func TestReencryptAll(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	oldKey, err := dbcrypt.GenerateAppKey()
	require.NoError(t, err)
	newKey, err := dbcrypt.GenerateAppKey()
	require.NoError(t, err)

	oldCipher, err := dbcrypt.NewKeyCipherFromStrings(oldKey, nil)
	require.NoError(t, err)
	before := newPatients(t, oldCipher)
	for _, ssn := range []string{"111-11-1111", "222-22-2222"} {
		p, err := before.New(ctx, map[string]any{"ssn": ssn, "age": 30})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, p))
	}
	plain, err := before.New(ctx, map[string]any{"name": "no secrets"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, plain))

	rotated, err := dbcrypt.NewKeyCipherFromStrings(newKey, []string{oldKey})
	require.NoError(t, err)
	after := newPatients(t, rotated)

	entities, fields, err := ReencryptAll(ctx, s, after)
	require.NoError(t, err)
	assert.Equal(t, 2, entities)
	assert.Equal(t, 4, fields)

	entities, _, err = ReencryptAll(ctx, s, after)
	require.NoError(t, err)
	assert.Zero(t, entities)

	// Only the new key is needed now.
	current, err := dbcrypt.NewKeyCipherFromStrings(newKey, nil)
	require.NoError(t, err)
	ids, err := s.List(ctx, newPatients(t, current))
	require.NoError(t, err)
	for _, id := range ids {
		p, err := s.Load(ctx, newPatients(t, current), id)
		require.NoError(t, err)
		res := p.Inspect(ctx, "ssn")
		assert.NotEqual(t, dbcrypt.PassthroughFailed, res.Outcome)
	}
}

func TestNormalize(t *testing.T) {
	typ := newPatients(t, dbcrypt.NewTestKeyCipher(t))
	e, err := decodeBag(typ, uuid.New(), []byte(`{"a":1,"b":1.5,"c":[2,{"d":3}],"e":"x","f":null}`))
	require.NoError(t, err)
	raw := e.RawAttributes()
	assert.Equal(t, int64(1), raw["a"])
	assert.Equal(t, 1.5, raw["b"])
	assert.Equal(t, []any{int64(2), map[string]any{"d": int64(3)}}, raw["c"])
	assert.Equal(t, "x", raw["e"])
	assert.Nil(t, raw["f"])

	_, err = decodeBag(typ, uuid.New(), []byte(`not json`))
	assert.ErrorIs(t, err, dbcrypt.ErrOperationFailed)
}
