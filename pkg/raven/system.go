// system.go captures process state at capture time.

package raven

import (
	"os"
	"runtime"
	"runtime/metrics"
	"time"
)

// heapObjectsMetric is live heap memory. runtime/metrics reads it without
// stopping the world, unlike runtime.ReadMemStats.
const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// processStart is used to report uptime.
var processStart = time.Now()

// hostname returns the machine name, or "" if it cannot be determined.
func hostname() string {
	name, _ := os.Hostname()
	return name
}

// runtimeContexts describes the Go runtime and the process at the current
// moment, for the event's contexts field.
func runtimeContexts(now time.Time) map[string]any {
	uptimeMs := now.Sub(processStart).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0
	}

	return map[string]any{
		"runtime": map[string]any{
			"name":    "go",
			"version": runtime.Version(),
		},
		"os": map[string]any{
			"name": runtime.GOOS,
		},
		"device": map[string]any{
			"arch": runtime.GOARCH,
		},
		"process": map[string]any{
			"goroutines":   runtime.NumGoroutine(),
			"memory_bytes": heapBytes(),
			"uptime_ms":    uptimeMs,
			"pid":          os.Getpid(),
		},
	}
}

// heapBytes returns the bytes held by live heap objects, or 0 if the runtime
// does not export the metric.
func heapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
