package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "clip.raw"),
		ResolveOutputPath("/media/clip.sbnd", "out", ""))
	assert.Equal(t, filepath.Join("out", "custom.bin"),
		ResolveOutputPath("/media/clip.sbnd", "out", "custom.bin"))
}

func TestIsStreamFile(t *testing.T) {
	assert.True(t, IsStreamFile("a.sbnd"))
	assert.True(t, IsStreamFile("b.SRAW"))
	assert.False(t, IsStreamFile("c.mkv"))
	assert.False(t, IsStreamFile("d"))
}

func TestEnsureDirectoryWritable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirectoryWritable(dir))
	assert.Error(t, EnsureDirectoryWritable(filepath.Join(dir, "missing")))
}

func TestFormatByteSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatByteSize(512))
	assert.Equal(t, "1.0 KiB", FormatByteSize(1024))
	assert.Equal(t, "1.5 MiB", FormatByteSize(3<<20/2))
}

func TestPhysicalCoresPositive(t *testing.T) {
	assert.Positive(t, PhysicalCores())
	assert.GreaterOrEqual(t, LogicalCores(), PhysicalCores())
}
