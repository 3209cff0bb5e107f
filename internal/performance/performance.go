// Package performance provides runtime memory sampling for the
// orchestrator's adaptive worker governor.
package performance

import (
	"fmt"
	"runtime"
)

// HeapStats is a snapshot of the numbers the governor cares about.
type HeapStats struct {
	HeapInuse  uint64 // bytes in non-idle spans
	HeapAlloc  uint64 // bytes allocated on heap
	Sys        uint64 // bytes obtained from the OS
	NumGC      uint32 // completed GC cycles
	Goroutines int
}

// ReadHeap samples the runtime memory statistics. This stops the world
// briefly, so callers should sample on a ticker rather than per task.
func ReadHeap() HeapStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HeapStats{
		HeapInuse:  m.HeapInuse,
		HeapAlloc:  m.HeapAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// FormatBytes formats a byte count in human-readable form.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < len(units)-1; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}
