package jobmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/simcore/simtask"
	"github.com/dcsim/simcore/vtime"
)

// buildFinishedChain builds a -> b -> c (b depends on a, c depends on b)
// and drives every task through to Finished at the given timestamps.
func buildFinishedChain(t *testing.T) *simtask.Job {
	t.Helper()
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: "job-1", Tasks: []simtask.TaskSpec{
			{ID: "a", Flops: 10, Cores: 1, SubmitTime: 0},
			{ID: "b", Flops: 10, Cores: 1, SubmitTime: 0, Dependencies: []simtask.ID{"a"}},
			{ID: "c", Flops: 10, Cores: 1, SubmitTime: 0, Dependencies: []simtask.ID{"b"}},
		}},
	}})
	require.NoError(t, err)

	job := jobs[0]
	byID := make(map[simtask.ID]*simtask.Task)
	for _, task := range job.Tasks {
		byID[task.ID] = task
	}

	finish := func(id simtask.ID, start, end vtime.Tick) {
		tk := byID[id]
		tk.MarkQueued(0)
		tk.MarkRunning(start)
		tk.Consume(end, tk.Remaining)
	}

	finish("a", 0, 2)
	finish("b", 2, 5)
	finish("c", 5, 9)

	return job
}

func TestJobRowForComputesCriticalPathAndMakespan(t *testing.T) {
	job := buildFinishedChain(t)
	row := JobRowFor(job)

	assert.Equal(t, vtime.Tick(9), row.Makespan)
	assert.Equal(t, vtime.Tick(9), row.CriticalPath)
	assert.Equal(t, 3, row.CriticalPathLength)
	assert.Equal(t, int64(1), row.NSL)
}

func TestTaskRowForComputesWaitingExecutionTurnaround(t *testing.T) {
	job := buildFinishedChain(t)
	var b *simtask.Task
	for _, task := range job.Tasks {
		if task.ID == "b" {
			b = task
		}
	}
	require.NotNil(t, b)

	row := TaskRowFor(job.ID, b)
	assert.Equal(t, vtime.Tick(2), row.Waiting)
	assert.Equal(t, vtime.Tick(3), row.Execution)
	assert.Equal(t, vtime.Tick(5), row.Turnaround)
}

func TestJobRowForParallelBranchesPicksLongerChain(t *testing.T) {
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: "job-1", Tasks: []simtask.TaskSpec{
			{ID: "root", Flops: 10, Cores: 1},
			{ID: "short", Flops: 10, Cores: 1, Dependencies: []simtask.ID{"root"}},
			{ID: "long1", Flops: 10, Cores: 1, Dependencies: []simtask.ID{"root"}},
			{ID: "long2", Flops: 10, Cores: 1, Dependencies: []simtask.ID{"long1"}},
		}},
	}})
	require.NoError(t, err)
	job := jobs[0]
	byID := make(map[simtask.ID]*simtask.Task)
	for _, task := range job.Tasks {
		byID[task.ID] = task
	}

	advance := func(id simtask.ID, finishAt vtime.Tick) {
		tk := byID[id]
		tk.MarkQueued(0)
		tk.MarkRunning(0)
		tk.Consume(finishAt, tk.Remaining)
	}
	advance("root", 1)
	advance("short", 2)
	advance("long1", 3)
	advance("long2", 4)

	row := JobRowFor(job)
	assert.Equal(t, 3, row.CriticalPathLength) // root -> long1 -> long2
	assert.Equal(t, vtime.Tick(4), row.CriticalPath)
}
