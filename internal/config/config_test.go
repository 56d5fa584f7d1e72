package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("in", "out", "logs")
	assert.Equal(t, "in", cfg.InputDir)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, DefaultThreads, cfg.Threads)
	assert.Equal(t, DefaultFrameLimit, cfg.FrameLimit)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := NewConfig(".", ".", ".")
	cfg.Threads = -1
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(".", ".", ".")
	cfg.Threads = MaxThreads + 1
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(".", ".", ".")
	cfg.FrameLimit = -3
	assert.Error(t, cfg.Validate())
}
