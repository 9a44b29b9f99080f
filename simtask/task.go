// Package simtask defines the simulator's data model: tasks, jobs, and the
// dependency DAG that links them, plus the input shapes (Trace, Topology)
// that external parsers populate. Nothing in this package depends on the
// kernel, the machine, or the scheduler — it is the shared, read-only-once
// model every process-bearing package builds on (spec.md §3).
package simtask

import (
	"errors"

	"github.com/dcsim/simcore/vtime"
)

// Sentinel errors raised by external parsers populating a Trace/Topology,
// following the teacher corpus's package-level var-block convention.
var (
	// ErrMalformedTrace is raised by a trace parser on duplicate task ids,
	// missing dependencies, or negative flops/cores.
	ErrMalformedTrace = errors.New("simtask: malformed trace")

	// ErrMalformedTopology is raised by a topology parser on a structurally
	// invalid datacenter/room/rack/machine/cpu tree.
	ErrMalformedTopology = errors.New("simtask: malformed topology")
)

// State is a Task's position in its lifecycle. The zero value is
// Underway, matching a freshly constructed Task that has not yet been
// seen by the scheduler.
type State int

const (
	Underway State = iota
	Queued
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Underway:
		return "Underway"
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// ID identifies a Task within its Job, unique across the whole Trace.
type ID string

// Task is a unit of work. Identity fields are set at construction and
// never change; Remaining/State/timestamps mutate as the simulation
// advances, but only ever forward along Underway -> Queued -> Running ->
// Finished (spec.md §3) — never skipped, never reversed.
type Task struct {
	ID         ID
	OwnerID    string
	Priority   int
	Flops      int64
	Cores      int
	InputSize  int64
	OutputSize int64
	SubmitTime vtime.Tick

	dependencies []*Task
	dependents   []*Task

	Remaining  int64
	state      State
	QueuedAt   vtime.Tick
	StartTime  vtime.Tick
	FinishTime vtime.Tick
}

// newTask constructs a Task in its Underway state, with Remaining primed
// to Flops.
func newTask(id ID, ownerID string, priority int, flops int64, cores int, inputSize, outputSize int64, submitTime vtime.Tick) *Task {
	return &Task{
		ID:         id,
		OwnerID:    ownerID,
		Priority:   priority,
		Flops:      flops,
		Cores:      cores,
		InputSize:  inputSize,
		OutputSize: outputSize,
		SubmitTime: submitTime,
		Remaining:  flops,
		state:      Underway,
	}
}

// State returns the task's current lifecycle state.
func (t *Task) State() State { return t.state }

// Finished reports whether the task has reached its terminal state.
func (t *Task) Finished() bool { return t.state == Finished }

// Ready reports whether every dependency has finished, i.e. the task is
// eligible for scheduling (spec.md §3: `ready ⇔ ∀ d ∈ dependencies :
// d.finished`).
func (t *Task) Ready() bool {
	for _, d := range t.dependencies {
		if !d.Finished() {
			return false
		}
	}
	return true
}

// Dependencies returns the tasks this task waits on. The returned slice
// must not be mutated by the caller.
func (t *Task) Dependencies() []*Task { return t.dependencies }

// Dependents returns the tasks waiting on this task. The returned slice
// must not be mutated by the caller.
func (t *Task) Dependents() []*Task { return t.dependents }

// MarkQueued transitions Underway -> Queued. It panics if called from any
// other state, since that would indicate a bookkeeping bug in the
// scheduler, not a recoverable runtime condition.
func (t *Task) MarkQueued(now vtime.Tick) {
	t.mustBe(Underway)
	t.state = Queued
	t.QueuedAt = now
}

// MarkRunning transitions Queued -> Running, recording the dispatch time.
func (t *Task) MarkRunning(now vtime.Tick) {
	t.mustBe(Queued)
	t.state = Running
	t.StartTime = now
}

// Consume advances execution by worked flops and, if remaining reaches
// zero, transitions Running -> Finished. Matches spec.md §4.E's
// `t.consume(now, amount)`. The task must already be Running (the Queued ->
// Running edge is MarkRunning's); a zero amount then leaves Remaining as it
// is, and finishes the task only if Remaining is already zero.
func (t *Task) Consume(now vtime.Tick, worked int64) {
	t.mustBe(Running)
	t.Remaining -= worked
	if t.Remaining <= 0 {
		t.Remaining = 0
		t.state = Finished
		t.FinishTime = now
	}
}

func (t *Task) mustBe(want State) {
	if t.state != want {
		panic("simtask: task " + string(t.ID) + " expected state " + want.String() + " but was " + t.state.String())
	}
}

// Job is a set of Tasks submitted together, sharing a single dependency
// DAG. A Job is Finished iff every one of its Tasks is Finished.
type Job struct {
	ID    string
	Tasks []*Task
}

// Finished reports whether every task in the job has reached its
// terminal state.
func (j *Job) Finished() bool {
	for _, t := range j.Tasks {
		if !t.Finished() {
			return false
		}
	}
	return true
}
