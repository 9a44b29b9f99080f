// Package jobmetrics computes the per-task and per-job outcome rows an
// external exporter writes out (spec.md §6 task_metrics, job_metrics).
// The core only defines the row shapes and the narrow sink interface that
// consumes them; it never opens a file or formats CSV itself.
package jobmetrics

import (
	"github.com/dcsim/simcore/simtask"
	"github.com/dcsim/simcore/vtime"
)

// RowSink is the narrow interface an external exporter implements to
// consume rows of type T (spec.md §6). The core never implements it
// itself.
type RowSink[T any] interface {
	Emit(row T)
}

// TaskRow is one task's outcome (spec.md §6 task_metrics columns, minus
// the experiment/scheduler columns an external exporter attaches).
type TaskRow struct {
	JobID     string
	TaskID    simtask.ID
	Waiting   vtime.Tick
	Execution vtime.Tick
	Turnaround vtime.Tick
}

// TaskRowFor computes t's outcome row. t must be Finished.
func TaskRowFor(jobID string, t *simtask.Task) TaskRow {
	return TaskRow{
		JobID:      jobID,
		TaskID:     t.ID,
		Waiting:    t.StartTime - t.SubmitTime,
		Execution:  t.FinishTime - t.StartTime,
		Turnaround: t.FinishTime - t.SubmitTime,
	}
}

// JobRow is one job's outcome (spec.md §6 job_metrics columns, minus the
// experiment/scheduler columns an external exporter attaches).
type JobRow struct {
	JobID               string
	CriticalPath        vtime.Tick
	CriticalPathLength  int
	WaitingTime         vtime.Tick
	Makespan            vtime.Tick
	NSL                 int64
}

// JobRowFor computes job's outcome row. Every task in job must be
// Finished. CriticalPath is the length, in virtual time, of the longest
// finish-time chain through the job's dependency DAG; CriticalPathLength
// is the node count on that chain (spec.md §6).
func JobRowFor(job *simtask.Job) JobRow {
	path, length := criticalPath(job.Tasks)

	var minSubmit, minStart, maxFinish vtime.Tick
	for i, t := range job.Tasks {
		if i == 0 || t.SubmitTime < minSubmit {
			minSubmit = t.SubmitTime
		}
		if i == 0 || t.StartTime < minStart {
			minStart = t.StartTime
		}
		if i == 0 || t.FinishTime > maxFinish {
			maxFinish = t.FinishTime
		}
	}

	makespan := maxFinish - minSubmit
	criticalPathTicks := path
	if criticalPathTicks < 1 {
		criticalPathTicks = 1
	}

	return JobRow{
		JobID:              job.ID,
		CriticalPath:       path,
		CriticalPathLength: length,
		WaitingTime:        minStart - minSubmit,
		Makespan:           makespan,
		NSL:                int64(makespan) / int64(criticalPathTicks),
	}
}

// criticalPath returns the length (in virtual time, from the earliest
// submission to the terminal task's finish) and node count of the
// longest finish-time chain through tasks' dependency DAG (spec.md §6).
// It walks from every task backward along dependencies, memoizing both the chain length and its virtual-time span
// to keep the walk linear in the number of (task, dependency) edges.
func criticalPath(tasks []*simtask.Task) (span vtime.Tick, nodes int) {
	type memo struct {
		span  vtime.Tick
		nodes int
	}
	memoized := make(map[simtask.ID]memo, len(tasks))

	var earliestSubmit vtime.Tick
	for i, t := range tasks {
		if i == 0 || t.SubmitTime < earliestSubmit {
			earliestSubmit = t.SubmitTime
		}
	}

	var walk func(t *simtask.Task) memo
	walk = func(t *simtask.Task) memo {
		if m, ok := memoized[t.ID]; ok {
			return m
		}
		// The chain's virtual-time span up to this node is simply this
		// node's own finish time relative to the job's earliest
		// submission time, since finish times are non-decreasing along
		// any dependency chain; only the node count needs to thread
		// through the longest incoming chain.
		var bestNodes int
		for _, dep := range t.Dependencies() {
			if m := walk(dep); m.nodes > bestNodes {
				bestNodes = m.nodes
			}
		}
		result := memo{span: t.FinishTime - earliestSubmit, nodes: bestNodes + 1}
		memoized[t.ID] = result
		return result
	}

	for _, t := range tasks {
		m := walk(t)
		if m.span > span || (m.span == span && m.nodes > nodes) {
			span, nodes = m.span, m.nodes
		}
	}
	return span, nodes
}
