package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPairs(t *testing.T) {
	assert.Equal(t, []any{"a", 1, "c", 3}, pairs([]any{"a", 1, 2, "x", "c", 3, "dangling"}))
	assert.Empty(t, pairs(nil))
}

func TestReplace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Info("batch: generated", "file", "a.xlsx", "events", 3)
	Error("batch: read failed", errors.New("boom"), "file", "b.xlsx")
	Debug("skip", "fragment", "week 1")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "batch: generated", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "a.xlsx", entries[0].ContextMap()["file"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["events"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])

	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
