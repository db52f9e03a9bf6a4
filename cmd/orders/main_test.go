package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace/internal/config"
)

func TestRunReturnsStartupFailure(t *testing.T) {
	t.Setenv("ORDERS_DB_HOST", "127.0.0.1")
	t.Setenv("ORDERS_DB_PORT", "1")
	t.Setenv("OTEL_ENDPOINT", "")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = run(ctx, cfg, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "connect to database")
}
