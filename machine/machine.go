// Package machine implements the per-machine state machine process:
// accept or decline incoming tasks against core-capacity constraints,
// advance accepted work to completion in virtual time, and report back to
// the scheduler (spec.md §4.E).
package machine

import (
	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/simlog"
	"github.com/dcsim/simcore/simtask"
	"github.com/dcsim/simcore/vtime"
)

// Status is the machine's coarse operating state.
type Status int

const (
	Halt Status = iota
	Idle
	Running
)

func (s Status) String() string {
	switch s {
	case Halt:
		return "Halt"
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// CPU is one CPU's capacity, mirroring simtask.CPU.
type CPU struct {
	ClockRateMHz int64
	Cores        int
}

// Config is a machine's startup configuration: its set of CPUs and its
// network speed. Cores is the sum of every CPU's cores; SpeedPerCore is
// the core-weighted average clock rate, in flops per tick per core
// (spec.md §4.E). A machine with zero total cores starts, and remains,
// Halted.
type Config struct {
	CPUs          []CPU
	EthernetSpeed int64
}

// Cores returns the sum of every CPU's core count.
func (c Config) Cores() int {
	var n int
	for _, cpu := range c.CPUs {
		n += cpu.Cores
	}
	return n
}

// SpeedPerCore returns the core-weighted average clock rate across CPUs,
// or 0 if the machine has no cores at all.
func (c Config) SpeedPerCore() int64 {
	cores := c.Cores()
	if cores == 0 {
		return 0
	}
	var weighted int64
	for _, cpu := range c.CPUs {
		weighted += cpu.ClockRateMHz * int64(cpu.Cores)
	}
	return weighted / int64(cores)
}

type (
	// Task asks the machine to run t, sent by the scheduler.
	Task struct{ Task *simtask.Task }

	// Accept is the machine's reply when it admitted t.
	Accept struct{ Task *simtask.Task }

	// Decline is the machine's reply when it had insufficient capacity
	// for t; no state changed.
	Decline struct{ Task *simtask.Task }

	// done is the machine's self-directed completion signal for a task it
	// is running.
	done struct{ Task *simtask.Task }
)

// Telemetry is cosmetic, read-only bookkeeping for observers: the
// "trivial per-task power/thermal delta" explicitly permitted by spec.md
// §1. It carries no scheduling weight whatsoever.
type Telemetry struct {
	MemoryMB    int64
	TemperatureC int64
}

const (
	memoryPerTaskMB     = 50
	temperaturePerTaskC = 5
	baseTemperatureC    = 20
)

// Machine is the kernel-facing read-only view of a running machine
// process's bookkeeping, useful to tests and to observers polling state
// between dispatches. It is refreshed in place by the process body on
// every message, so it must only be read between dispatches (never from
// inside a concurrently-running process body), matching the ownership
// rule of spec.md §3.
type Machine struct {
	Config Config

	Status         Status
	AvailableCores int
	Running        map[simtask.ID]*simtask.Task
	Load           float64
	Telemetry      Telemetry
}

// New constructs the Machine bookkeeping view and the proc.Body that
// drives it. The caller spawns the returned body under some proc.ID via
// the kernel; the Machine pointer it returns reflects that process's
// state as messages are delivered.
func New(cfg Config, log *simlog.Logger) (*Machine, proc.Body) {
	log = simlog.OrDisabled(log)
	cores := cfg.Cores()

	m := &Machine{
		Config:         cfg,
		AvailableCores: cores,
		Running:        make(map[simtask.ID]*simtask.Task),
	}
	if cores == 0 {
		m.Status = Halt
	} else {
		m.Status = Idle
	}
	m.Telemetry.TemperatureC = baseTemperatureC

	body := func(ctx *proc.Context) {
		if m.Status == Halt {
			// A halted machine ignores every message for the remainder of
			// the simulation (spec.md §4.E): consume the PreStart signal
			// and return, ending the process; the kernel's later
			// deliveries to a finished process are dropped.
			ctx.Receive(0)
			return
		}

		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			switch payload := msg.Payload.(type) {
			case Task:
				m.handleTask(ctx, msg.From, payload.Task, log)
			case done:
				m.handleDone(ctx, payload.Task, log)
			default:
				log.Debug().Log("machine: ignoring unrecognised message")
			}
			m.refreshStatus()
		}
	}

	return m, body
}

func (m *Machine) handleTask(ctx *proc.Context, sender proc.ID, t *simtask.Task, log *simlog.Logger) {
	if m.AvailableCores < t.Cores {
		_ = ctx.Send(sender, Decline{Task: t}, 0)
		return
	}

	m.Running[t.ID] = t
	m.AvailableCores -= t.Cores
	m.Status = Running
	m.Load += float64(t.Cores) / float64(m.Config.Cores())
	m.Telemetry.MemoryMB += memoryPerTaskMB
	m.Telemetry.TemperatureC += temperaturePerTaskC

	t.MarkRunning(ctx.Now)
	t.Consume(ctx.Now, 0)

	_ = ctx.Send(sender, Accept{Task: t}, 0)

	ticks := runTicks(t.Flops, t.Cores, m.Config.SpeedPerCore())
	if err := ctx.Send(ctx.ID, done{Task: t}, ticks); err != nil {
		log.Err().Err(err).Log("machine: failed to schedule completion")
	}
}

func (m *Machine) handleDone(ctx *proc.Context, t *simtask.Task, log *simlog.Logger) {
	if _, running := m.Running[t.ID]; !running {
		log.Debug().Str("task", string(t.ID)).Log("machine: done for task not running here")
		return
	}

	t.Consume(ctx.Now, t.Remaining)
	delete(m.Running, t.ID)
	m.AvailableCores += t.Cores
	m.Load -= float64(t.Cores) / float64(m.Config.Cores())
	if m.Load < 0 {
		m.Load = 0
	}
	m.Telemetry.MemoryMB -= memoryPerTaskMB
	m.Telemetry.TemperatureC -= temperaturePerTaskC
}

func (m *Machine) refreshStatus() {
	if m.Status == Halt {
		return
	}
	if len(m.Running) == 0 {
		m.Status = Idle
	} else {
		m.Status = Running
	}
}

// runTicks computes the number of ticks a task of flops, running on cores
// cores at speedPerCore flops/tick/core, takes to finish: ceil(flops /
// (cores * speedPerCore)) per spec.md §4.E.
func runTicks(flops int64, cores int, speedPerCore int64) vtime.Tick {
	rate := int64(cores) * speedPerCore
	if rate <= 0 {
		return 0
	}
	ticks := flops / rate
	if flops%rate != 0 {
		ticks++
	}
	return vtime.Tick(ticks)
}
