package dbcrypt

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrometheusCollectorThroughEntity(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	users := newUsers(t, NewTestKeyCipher(t), WithMetricsCollector(collector))
	u, err := users.New(ctx, map[string]any{"ssn": "123-45-6789"})
	require.NoError(t, err)
	_, err = u.Get(ctx, "ssn")
	require.NoError(t, err)

	legacy := users.Hydrate(uuid.New(), map[string]any{"ssn": "999-99-9999"})
	_, err = legacy.Get(ctx, "ssn")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "dbcrypt_transforms_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = NewPrometheusCollector(reg)
	assert.Error(t, err, "registering the same series twice must fail")
}

func TestLoggingHookThroughEntity(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)

	users := newUsers(t, NewTestKeyCipher(t), WithLogger(zap.New(core)))
	legacy := users.Hydrate(uuid.New(), map[string]any{"ssn": "999-99-9999"})
	_, err := legacy.Get(ctx, "ssn")
	require.NoError(t, err)

	failed := logs.FilterMessage("field transform failed, passing value through").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "decrypt", fields["operation"])
	assert.Equal(t, "user", fields["entity"])
	assert.Equal(t, "ssn", fields["field"])
	assert.Equal(t, "passthrough_failed", fields["outcome"])
	assert.NotContains(t, fields, "value")
}

func TestCustomObservabilityHook(t *testing.T) {
	ctx := context.Background()
	collector := NewInMemoryMetricsCollector()
	users := newUsers(t, NewTestKeyCipher(t), WithObservabilityHook(NewMetricsHook(collector)))

	u, err := users.New(ctx, map[string]any{"ssn": "123-45-6789", "age": 30})
	require.NoError(t, err)
	_, err = u.ToMap(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), collector.GetCounter("dbcrypt.transforms", map[string]string{
		"operation": "encrypt",
		"entity":    "user",
		"outcome":   "transformed",
	}))
	assert.Equal(t, int64(2), collector.GetCounter("dbcrypt.transforms", map[string]string{
		"operation": "decrypt",
		"entity":    "user",
		"outcome":   "transformed",
	}))
}
