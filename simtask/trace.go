package simtask

import "github.com/dcsim/simcore/vtime"

// TaskSpec is the flat, pre-DAG description of a single task, as an
// external trace parser would populate it: identity fields plus a list of
// dependency ids, resolved into pointers by BuildTrace.
type TaskSpec struct {
	ID           ID
	Priority     int
	Flops        int64
	Cores        int
	InputSize    int64
	OutputSize   int64
	SubmitTime   vtime.Tick
	Dependencies []ID
}

// JobSpec groups TaskSpecs under an owning job id.
type JobSpec struct {
	ID    string
	Tasks []TaskSpec
}

// Trace is the external workload input: a list of jobs, each a list of
// tasks with the fields of §3 and an explicit dependency-id list (spec.md
// §6). External parsers for concrete trace formats construct a Trace and
// hand it to BuildTrace; the core never reads a trace file itself.
type Trace struct {
	Jobs []JobSpec
}

// BuildTrace resolves a Trace's dependency ids into a bidirectionally
// linked Job/Task graph, matching spec.md §9's "build in a single pass
// after all ids are known": every TaskSpec.ID across the whole Trace is
// indexed first, then dependency pointers and their inverse (dependents)
// are wired in a second pass. It rejects duplicate ids, dependencies that
// point outside the same job, dependencies on unknown ids, negative
// flops/cores, and any cycle, all as ErrMalformedTrace.
func BuildTrace(trace Trace) ([]*Job, error) {
	tasksByID := make(map[ID]*Task)
	ownerOf := make(map[ID]string)

	var jobs []*Job
	for _, jobSpec := range trace.Jobs {
		job := &Job{ID: jobSpec.ID}
		for _, spec := range jobSpec.Tasks {
			if spec.ID == "" {
				return nil, ErrMalformedTrace
			}
			if _, dup := tasksByID[spec.ID]; dup {
				return nil, ErrMalformedTrace
			}
			if spec.Flops < 0 || spec.Cores < 0 {
				return nil, ErrMalformedTrace
			}
			t := newTask(spec.ID, jobSpec.ID, spec.Priority, spec.Flops, spec.Cores, spec.InputSize, spec.OutputSize, spec.SubmitTime)
			tasksByID[spec.ID] = t
			ownerOf[spec.ID] = jobSpec.ID
			job.Tasks = append(job.Tasks, t)
		}
		jobs = append(jobs, job)
	}

	for _, jobSpec := range trace.Jobs {
		for _, spec := range jobSpec.Tasks {
			t := tasksByID[spec.ID]
			for _, depID := range spec.Dependencies {
				dep, ok := tasksByID[depID]
				if !ok {
					return nil, ErrMalformedTrace
				}
				if ownerOf[depID] != jobSpec.ID {
					return nil, ErrMalformedTrace
				}
				t.dependencies = append(t.dependencies, dep)
				dep.dependents = append(dep.dependents, t)
			}
		}
	}

	for _, job := range jobs {
		for _, t := range job.Tasks {
			if hasCycle(t, make(map[ID]bool), make(map[ID]bool)) {
				return nil, ErrMalformedTrace
			}
		}
	}

	return jobs, nil
}

func hasCycle(t *Task, visiting, visited map[ID]bool) bool {
	if visited[t.ID] {
		return false
	}
	if visiting[t.ID] {
		return true
	}
	visiting[t.ID] = true
	for _, d := range t.dependencies {
		if hasCycle(d, visiting, visited) {
			return true
		}
	}
	visiting[t.ID] = false
	visited[t.ID] = true
	return false
}

// CPU is a single CPU's capacity, as carried by a Topology leaf.
type CPU struct {
	ClockRateMHz int64
	Cores        int
}

// MachineSpec describes one machine's CPUs, as an external topology
// parser would populate it after walking Datacenter -> Room -> Rack ->
// Machine -> CPU (spec.md §6).
type MachineSpec struct {
	ID            string
	CPUs          []CPU
	EthernetSpeed int64
}

// RackSpec, RoomSpec, and Datacenter mirror the topology tree's
// intermediate levels; the core only consumes the flattened MachineSpec
// list (via Topology.Machines), but the tree shape is preserved here so a
// parser can populate it directly without inventing its own types.
type RackSpec struct {
	ID       string
	Machines []MachineSpec
}

type RoomSpec struct {
	ID    string
	Racks []RackSpec
}

type Datacenter struct {
	ID    string
	Rooms []RoomSpec
}

// Topology is the external datacenter description (spec.md §6).
type Topology struct {
	Datacenters []Datacenter
}

// Machines flattens the topology tree into the list of MachineSpecs the
// core's machine package actually consumes.
func (top Topology) Machines() ([]MachineSpec, error) {
	var out []MachineSpec
	seen := make(map[string]bool)
	for _, dc := range top.Datacenters {
		for _, room := range dc.Rooms {
			for _, rack := range room.Racks {
				for _, m := range rack.Machines {
					if m.ID == "" || seen[m.ID] {
						return nil, ErrMalformedTopology
					}
					seen[m.ID] = true
					out = append(out, m)
				}
			}
		}
	}
	return out, nil
}
