package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(format Format) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.EnableColors = false
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func TestRedactsCredentialFields(t *testing.T) {
	logger, buf := newBufferLogger(FormatJSON)

	logger.WithFields(Fields{
		"user_id":       "u-1",
		"Password":      "hunter22",
		"refresh_token": "eyJ...",
	}).Info("login")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, redactedValue, line["Password"])
	assert.Equal(t, redactedValue, line["refresh_token"])
	assert.NotContains(t, buf.String(), "hunter22")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(FormatConsole)
	logger.SetLevel(LevelWarn)

	logger.WithField("k", "v").Info("hidden")
	assert.Empty(t, buf.String())

	logger.WithError(errors.New("boom")).Error("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "error: boom")
}

func TestWithContextCopiesRequestFields(t *testing.T) {
	logger, buf := newBufferLogger(FormatJSON)

	ctx := ContextWithUserID(ContextWithRequestID(context.Background(), "req-9"), "u-7")
	newEntry(logger).WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "u-7", line["user_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_CALLER", "true")

	cfg := LoadFromEnv()
	assert.Equal(t, LevelError, cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.EnableCaller)
	assert.True(t, cfg.EnableColors)
}
