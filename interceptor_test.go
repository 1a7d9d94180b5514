package dbcrypt

import (
	"context"
	"errors"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/dbcrypt/attribute"
)

func newTestInterceptor(t *testing.T, fields ...string) *Interceptor {
	t.Helper()
	tr, err := NewTransformer(NewTestKeyCipher(t))
	require.NoError(t, err)
	i, err := NewInterceptor("user", fields, tr)
	require.NoError(t, err)
	return i
}

func TestInterceptorInstallOrder(t *testing.T) {
	p := attribute.NewPipeline()
	require.NoError(t, newTestInterceptor(t, "ssn").Install(p))

	assert.Equal(t, []attribute.StageName{
		attribute.StageAccessor,
		StageDecrypt,
		attribute.StageCast,
		attribute.StageDate,
	}, p.GetStages())

	assert.Equal(t, []attribute.StageName{
		attribute.StageMutator,
		attribute.StageDateInput,
		attribute.StageEnum,
		attribute.StageClass,
		attribute.StageJSON,
		StagePathGuard,
		attribute.StagePath,
		StageEncrypt,
		attribute.StageStore,
	}, p.SetStages())

	assert.Equal(t, []attribute.StageName{
		attribute.StageExportAccessors,
		StageExportDecrypt,
		attribute.StageFormatDates,
		attribute.StageExportCasts,
		attribute.StageAppends,
	}, p.ExportStages())
}

func TestInterceptorInstallTwice(t *testing.T) {
	p := attribute.NewPipeline()
	i := newTestInterceptor(t, "ssn")
	require.NoError(t, i.Install(p))

	err := i.Install(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.ErrorIs(t, err, attribute.ErrDuplicateStage)

	err = newTestInterceptor(t, "phone").Install(p)
	assert.ErrorIs(t, err, attribute.ErrDuplicateStage)
}

func TestInterceptorInstallLeavesDefaultPipeline(t *testing.T) {
	base := attribute.NewPipeline()
	p := base.Clone()
	require.NoError(t, newTestInterceptor(t, "ssn").Install(p))

	assert.NotContains(t, base.GetStages(), StageDecrypt)
	assert.Contains(t, p.GetStages(), StageDecrypt)
}

func TestNewInterceptor(t *testing.T) {
	_, err := NewInterceptor("user", []string{"ssn"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	fields := []string{"ssn", "phone"}
	i := newTestInterceptor(t, fields...)
	fields[0] = "changed"
	assert.Equal(t, []string{"ssn", "phone"}, i.Fields())
	assert.True(t, i.IsEncryptable("ssn"))
	assert.False(t, i.IsEncryptable("changed"))
	assert.False(t, i.IsEncryptable("ssn.x"))

	out := i.Fields()
	out[0] = "x"
	assert.Equal(t, []string{"ssn", "phone"}, i.Fields())
}

func TestNewInterceptorNoFields(t *testing.T) {
	ctx := context.Background()
	i := newTestInterceptor(t)
	assert.Empty(t, i.Fields())

	r := i.inspect(ctx, "ssn", "value")
	assert.Equal(t, NotEncryptable, r.Outcome)
	assert.Equal(t, "value", r.Value)
}

func TestInterceptorValidateClassCast(t *testing.T) {
	schema, err := attribute.NewSchema("order",
		attribute.WithClassCast("total", stubCaster{}),
	)
	require.NoError(t, err)

	err = newTestInterceptor(t, "total").Validate(schema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	var errs errsx.Map
	require.True(t, errors.As(err, &errs))
	assert.Contains(t, errs, "total")
}

type stubCaster struct{}

func (stubCaster) Get(key string, raw any) (any, error) { return raw, nil }

func (stubCaster) Set(key string, value any) (map[string]any, error) {
	return map[string]any{key: value}, nil
}
