package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
}

func TestFindStreamFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.sbnd")
	touch(t, dir, "A.sraw")
	touch(t, dir, "notes.txt")
	touch(t, dir, ".hidden.sbnd")

	files, err := FindStreamFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "A.sraw", filepath.Base(files[0]))
	assert.Equal(t, "b.sbnd", filepath.Base(files[1]))
}

func TestFindStreamFilesEmptyDir(t *testing.T) {
	_, err := FindStreamFiles(t.TempDir())
	assert.Error(t, err)
}

func TestFindStreamFilesMissingDir(t *testing.T) {
	_, err := FindStreamFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
