package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFacadeWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))

	Info("timeline built", "date", "2025-03-01", "blocks", 3)
	Error("store write failed", errors.New("disk full"), "id", "t1")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "timeline built", entries[0].Message)
	assert.Equal(t, "2025-03-01", entries[0].ContextMap()["date"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["blocks"])

	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])
	assert.Equal(t, "t1", entries[1].ContextMap()["id"])
}
