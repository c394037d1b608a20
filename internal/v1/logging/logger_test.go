package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.NotNil(t, GetLogger())

	// Second call is a no-op
	err = Initialize(false)
	require.NoError(t, err)
}

func TestGetLoggerBeforeInit(t *testing.T) {
	// Must never return nil, even before Initialize
	assert.NotNil(t, GetLogger())
}

func TestAppendContextFields(t *testing.T) {
	ctx := WithRoom(context.Background(), "r1")
	ctx = WithPlayer(ctx, "alice")
	ctx = WithConn(ctx, "c-42")

	fields := appendContextFields(ctx, nil)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Key)
	}
	assert.Contains(t, names, "room_id")
	assert.Contains(t, names, "player_id")
	assert.Contains(t, names, "conn_id")
	assert.Contains(t, names, "service")
}

func TestAppendContextFieldsNilContext(t *testing.T) {
	fields := appendContextFields(nil, nil)
	assert.Empty(t, fields)
}

func TestLoggingDoesNotPanic(t *testing.T) {
	ctx := WithRoom(context.Background(), "r1")
	assert.NotPanics(t, func() {
		Info(ctx, "info message")
		Warn(ctx, "warn message")
		Error(ctx, "error message")
	})
}
