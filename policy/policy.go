// Package policy implements the scheduler's pluggable filter/sort/select
// algorithms (spec.md §4.F, §4.G): the T1 eligibility filter, T2 task
// sorter, R4 machine filter, and R5 machine selector stages of the
// scheduling pipeline. Every policy here is a small struct implementing
// one of the four interfaces below; per-policy memoized state (PISA's
// wait counts, DS's skip counts, RoundRobin's cursor, Lottery's tickets)
// lives on the struct itself, never in a package-level global (spec.md
// §5, §9).
package policy

import "github.com/dcsim/simcore/simtask"

// MachineID identifies a machine to a policy. It is a plain string (not
// proc.ID) so this package has no dependency on the process runtime;
// package scheduler converts between the two at its boundary.
type MachineID string

// MachineView is a read-only snapshot of one machine's scheduling-relevant
// state, as the scheduler's bookkeeping sees it. It is never mutated by a
// policy (spec.md §4.G: "pure function over an immutable snapshot").
type MachineView struct {
	ID             MachineID
	Cores          int
	AvailableCores int
	SpeedPerCore   int64
	EthernetSpeed  int64
	Load           float64
}

// Context carries everything a policy invocation needs beyond its direct
// arguments: the current virtual time, the full machine snapshot, and the
// scheduler's per-owner running-task counts (used by DS, and by any
// fairness-aware sort).
type Context struct {
	Now                 int64
	Machines            []MachineView
	RunningTasksByOwner map[string]int
}

// EligibilityFilter narrows queued tasks down to those eligible for this
// tick's sort/select stages (T1). The default keeps ready tasks only.
type EligibilityFilter interface {
	Filter(tasks []*simtask.Task, ctx Context) []*simtask.Task
}

// Sorter orders eligible tasks for dispatch attempts (T2).
type Sorter interface {
	Sort(tasks []*simtask.Task, ctx Context) []*simtask.Task
}

// MachineFilter narrows the machine snapshot down to those a given task
// could possibly run on (R4). The default keeps machines with sufficient
// available cores.
type MachineFilter interface {
	Filter(t *simtask.Task, machines []MachineView, ctx Context) []MachineView
}

// Selector picks one machine, from an already-filtered candidate set, to
// receive a task (R5). ok is false if no machine is suitable, per spec.md
// §4.G's "empty machines argument returns null/empty without error".
type Selector interface {
	Select(t *simtask.Task, machines []MachineView, ctx Context) (MachineView, bool)
}
