package policy

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/simcore/simrand"
	"github.com/dcsim/simcore/simtask"
)

func taskWith(id simtask.ID, owner string, priority int, flops, cores int64) *simtask.Task {
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: owner, Tasks: []simtask.TaskSpec{{ID: id, Priority: priority, Flops: flops, Cores: int(cores)}}},
	}})
	if err != nil {
		panic(err)
	}
	return jobs[0].Tasks[0]
}

func TestParseSchedulerNameBareAndCombinedForms(t *testing.T) {
	cases := []string{
		"FIFO-FIRSTFIT", "SRTF-BESTFIT", "RANDOM-WORSTFIT", "PISA-ROUNDROBIN",
		"FIFO-LOTTERY", "HEFT", "CPOP", "FCP", "DS",
	}
	for _, name := range cases {
		sorter, selector, err := ParseSchedulerName(name, 1)
		require.NoError(t, err, name)
		assert.NotNil(t, sorter, name)
		assert.NotNil(t, selector, name)
	}
}

func TestParseSchedulerNameIsCaseInsensitive(t *testing.T) {
	_, _, err := ParseSchedulerName("fifo-firstfit", 1)
	assert.NoError(t, err)
}

func TestParseSchedulerNameRejectsUnknown(t *testing.T) {
	_, _, err := ParseSchedulerName("NOPE-NOPE", 1)
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, _, err = ParseSchedulerName("FIFO-NOPE", 1)
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, _, err = ParseSchedulerName("NOPE", 1)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestParseSchedulerNameGivesIndependentMemoPerCall(t *testing.T) {
	_, sel1, err := ParseSchedulerName("FIFO-ROUNDROBIN", 1)
	require.NoError(t, err)
	_, sel2, err := ParseSchedulerName("FIFO-ROUNDROBIN", 1)
	require.NoError(t, err)

	machines := []MachineView{{ID: "m1"}, {ID: "m2"}}
	first, _ := sel1.Select(nil, machines, Context{})
	// A freshly parsed second instance must start its own cursor at 0,
	// unaffected by sel1's advance.
	second, _ := sel2.Select(nil, machines, Context{})
	assert.Equal(t, first.ID, second.ID)
}

func TestPISABoostsAfterMaxWaitCount(t *testing.T) {
	p := &PISA{MaxWaitCount: 3}
	low := taskWith("low", "job-1", 1, 100, 1)
	high := taskWith("high", "job-2", 10, 100, 1)
	tasks := []*simtask.Task{low, high}

	for i := 0; i < 2; i++ {
		out := p.Sort(tasks, Context{})
		assert.Equal(t, simtask.ID("high"), out[0].ID, "iteration %d", i)
	}
	// third call crosses MaxWaitCount for both: boosted set is identical
	// for both tasks, so priority order still decides.
	out := p.Sort(tasks, Context{})
	assert.Equal(t, simtask.ID("high"), out[0].ID)
}

func TestPISABoostsLowPriorityTaskAheadOfHigh(t *testing.T) {
	p := &PISA{MaxWaitCount: 2}
	low := taskWith("low", "job-1", 1, 100, 1)
	high := taskWith("high", "job-2", 10, 100, 1)

	// Starve "low" alone until it crosses the threshold while "high" is
	// absent from the candidate set (e.g. not ready yet), then bring both
	// back together.
	p.Sort([]*simtask.Task{low}, Context{})
	out := p.Sort([]*simtask.Task{low, high}, Context{})
	assert.Equal(t, simtask.ID("low"), out[0].ID)
}

func TestFCPSortsOnlyFirstWindow(t *testing.T) {
	tasks := make([]*simtask.Task, fcpWindow+1)
	for i := range tasks {
		tasks[i] = taskWith(simtask.ID(fmt.Sprintf("t%d", i)), "job", fcpWindow-i, 100, 1)
	}
	out := FCP{}.Sort(tasks, Context{})

	// Head window is sorted ascending by priority.
	for i := 1; i < fcpWindow; i++ {
		assert.LessOrEqual(t, out[i-1].Priority, out[i].Priority)
	}
	// The tail element (beyond the window) is untouched: it retains the
	// priority of the original last element.
	assert.Equal(t, tasks[len(tasks)-1].ID, out[len(out)-1].ID)
}

func TestDSBoostsOwnerAfterSkipThreshold(t *testing.T) {
	p := &DS{SkipThreshold: 2}
	owned := taskWith("t1", "owner-a", 0, 100, 1)
	ctx := Context{RunningTasksByOwner: map[string]int{"owner-a": 5}}

	p.Sort([]*simtask.Task{owned}, ctx)
	out := p.Sort([]*simtask.Task{owned}, ctx)
	require.Len(t, out, 1)
	// Boosted: key = RunningTasksByOwner + DSBoost, still the only element.
	assert.Equal(t, simtask.ID("t1"), out[0].ID)
	assert.Zero(t, p.skipCounts["owner-a"])
}

func TestDSOrdersByRunningTaskCountAscending(t *testing.T) {
	p := &DS{}
	a := taskWith("a", "busy", 0, 100, 1)
	b := taskWith("b", "idle", 0, 100, 1)
	ctx := Context{RunningTasksByOwner: map[string]int{"busy": 5, "idle": 0}}

	out := p.Sort([]*simtask.Task{a, b}, ctx)
	assert.Equal(t, []simtask.ID{"b", "a"}, []simtask.ID{out[0].ID, out[1].ID})
}

func TestHEFTSortPrefersHigherUpwardRank(t *testing.T) {
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: "job", Tasks: []simtask.TaskSpec{
			{ID: "root", Flops: 1000, OutputSize: 100},
			{ID: "leaf", Flops: 100, Dependencies: []simtask.ID{"root"}},
		}},
	}})
	require.NoError(t, err)
	machines := []MachineView{{SpeedPerCore: 100, EthernetSpeed: 100}}

	out := HEFTSort{}.Sort(jobs[0].Tasks, Context{Machines: machines})
	// root has a larger subtree below it (a dependent task adds to its
	// upward rank), so it must sort before leaf.
	assert.Equal(t, simtask.ID("root"), out[0].ID)
}

func TestCPOPRankMemoizationIsStablePerCall(t *testing.T) {
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: "job", Tasks: []simtask.TaskSpec{
			{ID: "a", Flops: 100},
			{ID: "b", Flops: 100, Dependencies: []simtask.ID{"a"}},
			{ID: "c", Flops: 100, Dependencies: []simtask.ID{"b"}},
		}},
	}})
	require.NoError(t, err)
	machines := []MachineView{{SpeedPerCore: 10, EthernetSpeed: 10}}

	out := CPOPSort{}.Sort(jobs[0].Tasks, Context{Machines: machines})
	assert.Len(t, out, 3)
}

func TestFirstFitSelectsFirstCandidate(t *testing.T) {
	machines := []MachineView{{ID: "m1"}, {ID: "m2"}}
	m, ok := FirstFit{}.Select(nil, machines, Context{})
	require.True(t, ok)
	assert.Equal(t, MachineID("m1"), m.ID)
}

func TestFirstFitEmptyCandidatesReturnsNotFound(t *testing.T) {
	_, ok := FirstFit{}.Select(nil, nil, Context{})
	assert.False(t, ok)
}

func TestBestFitAndWorstFitPickOppositeExtremes(t *testing.T) {
	task := taskWith("t", "job", 0, 0, 4)
	machines := []MachineView{
		{ID: "tight", AvailableCores: 4},
		{ID: "loose", AvailableCores: 16},
	}
	best, ok := BestFit{}.Select(task, machines, Context{})
	require.True(t, ok)
	assert.Equal(t, MachineID("tight"), best.ID)

	worst, ok := WorstFit{}.Select(task, machines, Context{})
	require.True(t, ok)
	assert.Equal(t, MachineID("loose"), worst.ID)
}

func TestRoundRobinCyclesAndPersistsAcrossCalls(t *testing.T) {
	p := &RoundRobin{}
	machines := []MachineView{{ID: "m1"}, {ID: "m2"}}

	first, _ := p.Select(nil, machines, Context{})
	second, _ := p.Select(nil, machines, Context{})
	third, _ := p.Select(nil, machines, Context{})

	assert.Equal(t, MachineID("m1"), first.ID)
	assert.Equal(t, MachineID("m2"), second.ID)
	assert.Equal(t, MachineID("m1"), third.ID)
}

func TestLotteryRetriesUntilEligibleMachine(t *testing.T) {
	p := &Lottery{Rng: deterministicRand(1), Tickets: 1}
	// Seed the policy's memo with three machines, then select from a
	// candidate set containing only one of them: the draw must always
	// resolve to that one.
	all := []MachineView{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}
	p.Select(nil, all, Context{})

	only := []MachineView{{ID: "m3"}}
	for i := 0; i < 20; i++ {
		m, ok := p.Select(nil, only, Context{})
		require.True(t, ok)
		assert.Equal(t, MachineID("m3"), m.ID)
	}
}

func deterministicRand(seed int64) *rand.Rand { return simrand.New(seed) }
