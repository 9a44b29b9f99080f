//go:build unix

package stagemetrics

import (
	"syscall"
	"time"
)

// cpuNow returns this process's accumulated user+system CPU time.
//
// Go exposes no per-goroutine CPU time API (runtime.ReadMemStats and
// friends report heap/GC stats, not scheduler CPU accounting), so this is
// necessarily process-wide rather than scoped to the scheduler's own
// goroutine; a single-threaded kernel with one scheduler process makes
// that an acceptable approximation for a stage-cost signal, but it is not
// exact under concurrent kernels (package experiment). Documented as a
// deliberate stdlib-only concern: no library in the example corpus
// provides per-goroutine CPU accounting either.
func cpuNow() time.Duration {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err != nil {
		return 0
	}
	user := time.Duration(usage.Utime.Nano())
	sys := time.Duration(usage.Stime.Nano())
	return user + sys
}
