package kernel

import "errors"

// Sentinel errors, following the teacher corpus's convention of
// package-level var blocks of errors.New values rather than ad hoc strings.
var (
	// ErrInvalidDelay is returned by Schedule when delay is negative.
	ErrInvalidDelay = errors.New("kernel: delay must be >= 0")

	// ErrInterrupted is returned by Run when its context is canceled before
	// the run completes. The kernel is left in a consistent, paused state;
	// calling Run again with a later `until` resumes it.
	ErrInterrupted = errors.New("kernel: run interrupted")

	// ErrUnknownProcess is returned by Stop for a process ID never spawned,
	// or already stopped (spec.md's IllegalProcessState: ignored with a
	// warning at the call site that has a logger, never fatal).
	ErrUnknownProcess = errors.New("kernel: unknown process")
)
