//go:build !unix

package stagemetrics

import "time"

// cpuNow falls back to wall time on platforms without a Getrusage-style
// CPU accounting syscall (spec.md §4.H explicitly documents this
// fallback).
func cpuNow() time.Duration {
	return time.Duration(time.Now().UnixNano())
}
