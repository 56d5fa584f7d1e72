package util

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// LogicalCores returns the number of logical CPUs available.
func LogicalCores() int {
	return runtime.NumCPU()
}

// PhysicalCores returns the number of physical CPU cores, falling back to
// the logical count when the topology cannot be read.
func PhysicalCores() int {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return runtime.NumCPU()
	}

	// Count unique (physical id, core id) pairs.
	cores := make(map[string]bool)
	var physID string
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "physical id":
			physID = value
		case "core id":
			cores[physID+":"+value] = true
		}
	}

	if len(cores) == 0 {
		return runtime.NumCPU()
	}
	return len(cores)
}

// AvailableMemoryBytes returns the system's free memory in bytes, or 0 if it
// cannot be determined.
func AvailableMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Freeram) * uint64(info.Unit)
}

// Hostname returns the machine hostname, or "unknown".
func Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// FormatByteSize renders a byte count with a binary-prefix unit.
func FormatByteSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
