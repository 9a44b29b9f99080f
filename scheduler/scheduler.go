// Package scheduler implements the staged scheduling pipeline process:
// task eligibility filtering, task sorting, machine filtering, and
// machine selection, parameterized by pluggable package policy
// algorithms, coordinating queueing, dispatch, and per-stage accounting
// (spec.md §4.F).
package scheduler

import (
	"fmt"
	"sort"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/dcsim/simcore/eventbus"
	"github.com/dcsim/simcore/machine"
	"github.com/dcsim/simcore/policy"
	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/simlog"
	"github.com/dcsim/simcore/simtask"
	"github.com/dcsim/simcore/stagemetrics"
)

// MachineRegistration is one machine's scheduling-relevant capacity, as
// reported by a Resources fleet update.
type MachineRegistration struct {
	ID            proc.ID
	Cores         int
	SpeedPerCore  int64
	EthernetSpeed int64
}

type (
	// Schedule is the scheduling tick message: newTasks are appended to
	// queued and tasks before the pipeline runs.
	Schedule struct {
		NewTasks []*simtask.Task
	}

	// Resources is a fleet update: Registered machines are added (or have
	// their capacity refreshed), Unregistered machine ids are withdrawn.
	// Withdrawing a machine does not disturb tasks already dispatched to
	// it (spec.md §4.F).
	Resources struct {
		Registered   []MachineRegistration
		Unregistered []proc.ID
	}
)

// PolicyFailure wraps a panic recovered from a policy invocation. The
// tick that triggered it is aborted, not the scheduler: bookkeeping
// mutations already performed stand, and every task not yet dispatched
// remains in the queue for the next tick (spec.md §4.F, §7).
type PolicyFailure struct {
	Stage string
	Value any
}

func (e *PolicyFailure) Error() string {
	return fmt.Sprintf("scheduler: policy failure in stage %s: %v", e.Stage, e.Value)
}

// record is the scheduler's per-machine bookkeeping projection of a
// registered machine's capacity (spec.md §3 Scheduler state). It may lag
// the machine's own view by at most one message round-trip.
type record struct {
	MachineRegistration
	availableCores int
}

// Scheduler is the kernel-facing bookkeeping view the scheduler process
// body maintains (spec.md §3). It is refreshed in place on every message
// and must only be read between dispatches.
type Scheduler struct {
	machines map[proc.ID]*record
	tasks    map[simtask.ID]*simtask.Task

	queued       []*simtask.Task
	pending      map[simtask.ID]*simtask.Task
	taskMachines map[simtask.ID]proc.ID

	runningTasksByOwner map[string]int
}

// Config configures a Scheduler's pipeline policies.
type Config struct {
	Eligibility policy.EligibilityFilter
	Sorter      policy.Sorter
	MachineFilt policy.MachineFilter
	Selector    policy.Selector

	// Bus is the event bus to publish StageMeasurements and PolicyFailure
	// notifications onto (spec.md §4.H, §4.F).
	Bus proc.ID

	// FailureLogRates bounds how often a persistently failing policy logs
	// a PolicyFailure, keyed by policy stage name, via
	// github.com/joeycumines/go-catrate (spec.md §4.F). A nil map disables
	// rate limiting (every failure logs).
	FailureLogRates map[time.Duration]int
}

func (c Config) withDefaults() Config {
	if c.Eligibility == nil {
		c.Eligibility = policy.ReadyOnly{}
	}
	if c.Sorter == nil {
		c.Sorter = policy.FIFO{}
	}
	if c.MachineFilt == nil {
		c.MachineFilt = policy.SufficientCores{}
	}
	if c.Selector == nil {
		c.Selector = policy.FirstFit{}
	}
	return c
}

// New constructs the Scheduler bookkeeping view and the proc.Body that
// drives it, per Config's policies. log is nil-safe.
func New(cfg Config, log *simlog.Logger) (*Scheduler, proc.Body) {
	cfg = cfg.withDefaults()
	log = simlog.OrDisabled(log)

	s := &Scheduler{
		machines:            make(map[proc.ID]*record),
		tasks:               make(map[simtask.ID]*simtask.Task),
		pending:             make(map[simtask.ID]*simtask.Task),
		taskMachines:        make(map[simtask.ID]proc.ID),
		runningTasksByOwner: make(map[string]int),
	}

	var limiter *catrate.Limiter
	if len(cfg.FailureLogRates) > 0 {
		limiter = catrate.NewLimiter(cfg.FailureLogRates)
	}

	body := func(ctx *proc.Context) {
		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			switch m := msg.Payload.(type) {
			case Schedule:
				s.runTick(ctx, cfg, m.NewTasks, log, limiter)
			case Resources:
				s.applyResources(m)
			case machine.Accept:
				s.handleAccept(m.Task)
			case machine.Decline:
				s.handleDecline(m.Task)
			default:
				log.Debug().Log("scheduler: ignoring unrecognised message")
			}
		}
	}

	return s, body
}

func (s *Scheduler) applyResources(m Resources) {
	for _, reg := range m.Registered {
		s.machines[reg.ID] = &record{MachineRegistration: reg, availableCores: reg.Cores}
	}
	for _, id := range m.Unregistered {
		delete(s.machines, id)
	}
}

func (s *Scheduler) handleAccept(t *simtask.Task) {
	delete(s.pending, t.ID)
}

func (s *Scheduler) handleDecline(t *simtask.Task) {
	delete(s.pending, t.ID)

	mID, hadMachine := s.taskMachines[t.ID]
	if hadMachine {
		if m, ok := s.machines[mID]; ok {
			m.availableCores += t.Cores
		}
		delete(s.taskMachines, t.ID)
	}
	if s.runningTasksByOwner[t.OwnerID] > 0 {
		s.runningTasksByOwner[t.OwnerID]--
	}

	s.queued = append(s.queued, t)
}

// runTick executes one Schedule tick's pipeline: C1, T1, T2, and the R4/R5
// per-task dispatch loop, all wrapped in a stagemetrics.Accumulator
// (spec.md §4.F, §4.H).
func (s *Scheduler) runTick(ctx *proc.Context, cfg Config, newTasks []*simtask.Task, log *simlog.Logger, limiter *catrate.Limiter) {
	acc := stagemetrics.NewAccumulator()
	acc.Start(ctx.Now)
	defer acc.End(ctx, cfg.Bus)

	acc.RunStage("C1", len(newTasks), func() {
		s.queued = append(s.queued, newTasks...)
		for _, t := range newTasks {
			s.tasks[t.ID] = t
			t.MarkQueued(ctx.Now)
		}
		s.releaseFinished()
	})

	if len(s.queued) == 0 {
		return
	}

	machineViews := s.machineViews()
	pctx := policy.Context{
		Now:                 int64(ctx.Now),
		Machines:            machineViews,
		RunningTasksByOwner: s.runningTasksByOwner,
	}

	var eligible, sorted []*simtask.Task
	if !s.guardedStage(ctx, cfg.Bus, "T1", log, limiter, func() {
		acc.RunStage("T1", len(s.queued), func() {
			eligible = cfg.Eligibility.Filter(s.queued, pctx)
		})
	}) {
		return
	}

	if !s.guardedStage(ctx, cfg.Bus, "T2", log, limiter, func() {
		acc.RunStage("T2", len(eligible), func() {
			sorted = cfg.Sorter.Sort(eligible, pctx)
		})
	}) {
		return
	}

	for _, t := range sorted {
		var candidates []policy.MachineView
		failed := !s.guardedStage(ctx, cfg.Bus, "R4", log, limiter, func() {
			acc.RunStage("R4", 1, func() {
				candidates = cfg.MachineFilt.Filter(t, s.machineViews(), pctx)
			})
		})
		if failed {
			return
		}

		var chosen policy.MachineView
		var found bool
		failed = !s.guardedStage(ctx, cfg.Bus, "R5", log, limiter, func() {
			acc.RunStage("R5", 1, func() {
				chosen, found = cfg.Selector.Select(t, candidates, pctx)
			})
		})
		if failed {
			return
		}
		if !found {
			continue
		}

		s.dispatch(ctx, t, proc.ID(chosen.ID))
	}
}

// guardedStage recovers a panic from fn, converting it into a
// PolicyFailure that is logged, rate-limited per stage via limiter, and
// published onto bus (spec.md §4.F "the error is logged and published on
// the bus"). It returns false if fn panicked, so the caller aborts the
// rest of the tick (spec.md §4.F's "aborts this scheduling tick only").
func (s *Scheduler) guardedStage(ctx *proc.Context, bus proc.ID, stage string, log *simlog.Logger, limiter *catrate.Limiter, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			failure := &PolicyFailure{Stage: stage, Value: r}
			_ = ctx.Send(bus, eventbus.Publish{Event: failure}, 0)
			if limiter == nil {
				logPolicyFailure(log, failure)
				return
			}
			if _, allowed := limiter.Allow(stage); allowed {
				logPolicyFailure(log, failure)
			}
		}
	}()
	fn()
	return true
}

func logPolicyFailure(log *simlog.Logger, failure *PolicyFailure) {
	log.Err().
		Err(failure).
		Str("stage", failure.Stage).
		Log("scheduler: policy failure, aborting this tick")
}

// dispatch sends t to m, moving it from queued to pending (spec.md §4.F
// R4/R5 dispatch bookkeeping).
func (s *Scheduler) dispatch(ctx *proc.Context, t *simtask.Task, m proc.ID) {
	rec, ok := s.machines[m]
	if !ok {
		return
	}

	if err := ctx.Send(m, machine.Task{Task: t}, 0); err != nil {
		return
	}

	s.queued = removeTask(s.queued, t)
	s.pending[t.ID] = t
	s.taskMachines[t.ID] = m
	rec.availableCores -= t.Cores
	s.runningTasksByOwner[t.OwnerID]++
}

// releaseFinished scans tasks for newly finished entries, releasing their
// machine's cores and clearing their bookkeeping (spec.md §4.F C1).
func (s *Scheduler) releaseFinished() {
	for id, t := range s.tasks {
		if !t.Finished() {
			continue
		}
		if m, hasMachine := s.taskMachines[id]; hasMachine {
			if rec, ok := s.machines[m]; ok {
				rec.availableCores += t.Cores
			}
			delete(s.taskMachines, id)
		}
		if s.runningTasksByOwner[t.OwnerID] > 0 {
			s.runningTasksByOwner[t.OwnerID]--
		}
		delete(s.tasks, id)
	}
}

func (s *Scheduler) machineViews() []policy.MachineView {
	out := make([]policy.MachineView, 0, len(s.machines))
	for id, rec := range s.machines {
		out = append(out, policy.MachineView{
			ID:             policy.MachineID(id),
			Cores:          rec.Cores,
			AvailableCores: rec.availableCores,
			SpeedPerCore:   rec.SpeedPerCore,
			EthernetSpeed:  rec.EthernetSpeed,
			Load:           load(rec),
		})
	}
	// Map iteration order is random; sort so policies see a deterministic
	// candidate order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func load(rec *record) float64 {
	if rec.Cores == 0 {
		return 0
	}
	used := rec.Cores - rec.availableCores
	return float64(used) / float64(rec.Cores)
}

func removeTask(tasks []*simtask.Task, target *simtask.Task) []*simtask.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != target.ID {
			out = append(out, t)
		}
	}
	return out
}

// Queued returns the ids currently queued, for tests and observers.
func (s *Scheduler) Queued() []simtask.ID {
	out := make([]simtask.ID, 0, len(s.queued))
	for _, t := range s.queued {
		out = append(out, t.ID)
	}
	return out
}

// Pending returns the ids currently pending dispatch confirmation, for
// tests and observers.
func (s *Scheduler) Pending() []simtask.ID {
	out := make([]simtask.ID, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}
