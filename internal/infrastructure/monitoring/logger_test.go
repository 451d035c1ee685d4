package monitoring_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ckms/internal/config"
	"github.com/turtacn/ckms/internal/infrastructure/monitoring"
	"github.com/turtacn/ckms/pkg/logger"
)

func TestNewZapLogger_FallsBackToInfoOnUnknownLevel(t *testing.T) {
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "not-a-level"})
	require.NoError(t, err)
	require.NotNil(t, log)

	// None of these should panic regardless of the invalid configured level.
	log.Info(context.Background(), "service started")
	log.Warn(context.Background(), "degraded mode")
	log.Debug(context.Background(), "verbose detail")
}

func TestZapLogger_WithFieldsReturnsAScopedLogger(t *testing.T) {
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "debug"})
	require.NoError(t, err)

	scoped := log.WithFields(logger.Fields{"component": "resolver"})
	assert.NotNil(t, scoped)
	scoped.Info(context.Background(), "minted alias")
}

func TestZapLogger_ForContextFallsBackWithoutContextLogger(t *testing.T) {
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})
	require.NoError(t, err)

	assert.Equal(t, log, log.ForContext(context.Background()))
}
