// Package experiment implements the one piece of "orchestrate multiple
// kernels" behavior the core itself provides: running several independent
// kernel.Kernel instances in parallel, one per goroutine, each never
// shared across goroutines (spec.md §5). It neither parses CLI flags nor
// writes CSVs — both remain out of scope, owned by an enclosing program.
package experiment

import (
	"context"
	"sync"

	"github.com/dcsim/simcore/kernel"
	"github.com/dcsim/simcore/vtime"
)

// Run is one independent simulation to execute: a pre-populated kernel
// (every process already spawned) plus the virtual-time horizon to run it
// to.
type Run struct {
	Name   string
	Kernel *kernel.Kernel
	Until  vtime.Tick
}

// Result is one Run's outcome.
type Result struct {
	Name     string
	Err      error
	Aborted  bool // true if the kernel still had pending work at Until.
}

// RunAll runs every entry of runs to completion (or to its Until bound)
// concurrently, one goroutine per kernel instance, honoring ctx
// cancellation (spec.md §5's "external callers... may run separate
// kernel instances in parallel; one kernel instance is never shared").
// Results are returned in the same order as runs, following the teacher
// corpus's sync.WaitGroup fan-out/fan-in pattern (see DESIGN.md).
func RunAll(ctx context.Context, runs []Run) []Result {
	results := make([]Result, len(runs))

	var wg sync.WaitGroup
	wg.Add(len(runs))
	for i, r := range runs {
		i, r := i, r
		go func() {
			defer wg.Done()
			err := r.Kernel.Run(ctx, r.Until)
			results[i] = Result{
				Name:    r.Name,
				Err:     err,
				Aborted: err == nil && r.Kernel.Pending(),
			}
		}()
	}
	wg.Wait()

	return results
}
