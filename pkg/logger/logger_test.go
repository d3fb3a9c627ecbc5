package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "ledgertx/internal/core/context"
)

func TestFromContext_AddsTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromZap(zap.New(core))

	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext("trace-1", "req-1"))

	Info(ctx, "transfer committed", "amount", 2000)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.EqualValues(t, 2000, fields["amount"])
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := New(Config{Level: "chatty", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
}

func TestNew_Name(t *testing.T) {
	log, err := New(Config{Level: "debug", Name: "ledgerctl", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.Equal(t, "ledgerctl", log.Desugar().Name())
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	core, logs := observer.New(zapcore.WarnLevel)
	SetDefault(NewFromZap(zap.New(core)))

	Warn(context.Background(), "rollback on release failed", "error", "conn busy")
	Info(context.Background(), "filtered by level")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "rollback on release failed", entry.Message)
	_, hasTrace := entry.ContextMap()["trace_id"]
	assert.False(t, hasTrace, "no trace fields without a trace in ctx")
}
