// Package util provides utility functions for file and system probing.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// MinOutputSpaceMB is the minimum free space required before writing decoded
// output (in MB).
const MinOutputSpaceMB = 100

// EnsureDirectory creates the directory if it does not exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureDirectoryWritable checks if a directory exists and is writable.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check if directory is writable by attempting to create a test file
	testPath := filepath.Join(path, ".spool_write_test")
	f, err := os.Create(testPath)
	if err != nil {
		return fmt.Errorf("directory is not writable: %s", path)
	}
	_ = f.Close()
	_ = os.Remove(testPath)

	return nil
}

// GetAvailableSpace returns the available disk space in bytes for the given
// path, or 0 if it cannot be determined.
func GetAvailableSpace(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// CheckDiskSpace warns through the logger when the output location is low on
// space. Returns false when below the minimum.
func CheckDiskSpace(path string, logger func(format string, args ...any)) bool {
	available := GetAvailableSpace(path)
	if available == 0 {
		return true // Can't determine, assume OK
	}
	availableMB := available / (1 << 20)
	if availableMB < MinOutputSpaceMB {
		if logger != nil {
			logger("Low disk space at %s: %d MB available", path, availableMB)
		}
		return false
	}
	return true
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// GetFilename returns the final path element.
func GetFilename(path string) string {
	return filepath.Base(path)
}

// ResolveOutputPath builds the output file path for a decoded input. When
// override is non-empty it is used as the filename.
func ResolveOutputPath(inputPath, outputDir, override string) string {
	name := override
	if name == "" {
		base := filepath.Base(inputPath)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".raw"
	}
	return filepath.Join(outputDir, name)
}

// IsStreamFile reports whether the path looks like a decodable band stream.
func IsStreamFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sbnd", ".sraw":
		return true
	default:
		return false
	}
}
