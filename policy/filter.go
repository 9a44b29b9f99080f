package policy

import "github.com/dcsim/simcore/simtask"

// ReadyOnly is the default TaskEligibilityFilteringPolicy: keep tasks
// whose dependencies have all finished (spec.md §4.F).
type ReadyOnly struct{}

func (ReadyOnly) Filter(tasks []*simtask.Task, _ Context) []*simtask.Task {
	out := make([]*simtask.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Ready() {
			out = append(out, t)
		}
	}
	return out
}

// SufficientCores is the default MachineDynamicFilteringPolicy: keep
// machines with enough available cores for the task (spec.md §4.F).
type SufficientCores struct{}

func (SufficientCores) Filter(t *simtask.Task, machines []MachineView, _ Context) []MachineView {
	out := make([]MachineView, 0, len(machines))
	for _, m := range machines {
		if m.AvailableCores >= t.Cores {
			out = append(out, m)
		}
	}
	return out
}
