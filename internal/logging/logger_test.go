package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	scoped := logger.WithComponent("dispatcher").With("session", "abc")
	scoped.Error(context.Background(), errors.New("boom"), "compile failed", "request_id", 7)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "compile failed", entry["msg"])
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 7, entry["request_id"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "nothing")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab...[TRUNCATED]", Truncate("abcdef", 2))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))

	// "é" is two bytes; cutting inside it backs off to the rune start.
	got := Truncate("aéb", 2)
	assert.Equal(t, "a...[TRUNCATED]", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "aé...[TRUNCATED]", Truncate("aéb", 3))
}
