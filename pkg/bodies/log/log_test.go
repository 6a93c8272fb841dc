package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_PassesInputsThrough(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	body, err := NewFactory(logger).Create(map[string]any{"message": "checkpoint reached"})
	require.NoError(t, err)

	inputs := map[string]any{"doubled": 10}

	output, err := body(inputs)
	require.NoError(t, err)
	assert.Equal(t, inputs, output)

	assert.Contains(t, buf.String(), "checkpoint reached")
	assert.Contains(t, buf.String(), "doubled")
}

func TestCreate_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	factory := NewFactory(logger)

	infoBody, err := factory.Create(map[string]any{"message": "quiet", "level": "info"})
	require.NoError(t, err)

	warnBody, err := factory.Create(map[string]any{"message": "loud", "level": "warn"})
	require.NoError(t, err)

	_, err = infoBody(nil)
	require.NoError(t, err)

	_, err = warnBody(nil)
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestCreate_InvalidParams(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message must be a string")

	_, err = factory.Create(map[string]any{"message": "ok", "level": "loudest"})
	require.Error(t, err)
}
