package kernel

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/simlog"
	"github.com/dcsim/simcore/vtime"
)

// procID is an alias for proc.ID, so this file doesn't need to repeat the
// package qualifier everywhere.
type procID = proc.ID

// preStart is delivered, exactly once, as the first message any spawned
// process receives (spec.md §4.C Lifecycle).
type preStart struct{}

// PreStart is the payload every process's first Receive call observes.
var PreStart any = preStart{}

// Kernel owns virtual time, the event queue, and the process registry. It
// is the only component in the simulator permitted to advance virtual
// time or dispatch a message to a process (spec.md §3 Ownership).
//
// A Kernel is not safe for concurrent use: it is deliberately
// single-threaded (spec.md §5). Running independent simulations in
// parallel means constructing independent Kernel instances, one per
// goroutine (see package experiment).
type Kernel struct {
	now        vtime.Tick
	queue      eventHeap
	tiebreak   uint64
	registry   map[procID]*proc.Process
	log        *simlog.Logger
	interrupts int // diagnostic counter of interrupted Run calls
}

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithLogger attaches a structured logger used for ProcessCrash and
// dropped-message diagnostics. A nil logger (the default) discards them.
func WithLogger(l *simlog.Logger) Option {
	return func(k *Kernel) { k.log = simlog.OrDisabled(l) }
}

// New constructs an empty Kernel at time zero.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		registry: make(map[procID]*proc.Process),
		log:      simlog.Disabled,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Now returns the kernel's current virtual time.
func (k *Kernel) Now() vtime.Tick { return k.now }

// Schedule enqueues payload for delivery to dest, delay ticks from now.
// from identifies the logical sender (the empty ID for messages injected
// by an external caller); it is attached to the delivered proc.Message.
// It returns ErrInvalidDelay if delay is negative.
func (k *Kernel) Schedule(from, to procID, payload any, delay vtime.Tick) error {
	if delay < 0 {
		return ErrInvalidDelay
	}
	k.tiebreak++
	heap.Push(&k.queue, &event{
		deliveryTime: k.now + delay,
		tiebreaker:   k.tiebreak,
		dest:         to,
		from:         from,
		payload:      payload,
	})
	return nil
}

// Send is the external-caller convenience form of Schedule: it attaches no
// sender identity, matching spec.md §4.B's schedule(destination, payload, delay).
func (k *Kernel) Send(to procID, payload any, delay vtime.Tick) error {
	return k.Schedule("", to, payload, delay)
}

// Spawn registers a new process running body, and enqueues its PreStart
// signal at the current time, so that it is delivered before any other
// message addressed to this process (spec.md §4.B). It panics if id is
// already registered, mirroring the teacher corpus's convention of
// validating irrecoverable misuse at the call site rather than threading
// an error through every constructor.
func (k *Kernel) Spawn(id procID, body proc.Body) *proc.Process {
	if _, exists := k.registry[id]; exists {
		panic(fmt.Sprintf("kernel: process %q already spawned", id))
	}
	p := proc.New(id, k, body)
	k.registry[id] = p
	k.tiebreak++
	heap.Push(&k.queue, &event{
		deliveryTime: k.now,
		tiebreaker:   k.tiebreak,
		dest:         id,
		payload:      PreStart,
	})
	return p
}

// Stop deregisters id, stopping its process body. Subsequent messages to
// id are silently dropped (spec.md §4.C Lifecycle). Stopping an unknown or
// already-stopped process is ErrUnknownProcess, logged as a warning by the
// caller rather than treated as fatal (spec.md §7 IllegalProcessState).
func (k *Kernel) Stop(id procID) error {
	p, ok := k.registry[id]
	if !ok {
		return ErrUnknownProcess
	}
	delete(k.registry, id)
	p.Stop()
	return nil
}

// Process returns the registered process handle for id, or nil.
func (k *Kernel) Process(id procID) *proc.Process { return k.registry[id] }

// Step pops the single earliest-scheduled event, advances now to its
// delivery time (never backwards), and dispatches it. It returns false
// when the queue was empty (nothing to do).
func (k *Kernel) Step() bool {
	if k.queue.Len() == 0 {
		return false
	}
	ev := heap.Pop(&k.queue).(*event)
	k.now = ev.deliveryTime

	p, ok := k.registry[ev.dest]
	if !ok {
		k.log.Debug().Str("process", string(ev.dest)).Log("kernel: dropped message for unknown process")
		return true
	}

	if crash := p.Deliver(k.now, proc.Message{From: ev.from, Payload: ev.payload}); crash != nil {
		k.handleCrash(ev.dest, crash)
	}
	return true
}

func (k *Kernel) handleCrash(id procID, crash *proc.CrashError) {
	delete(k.registry, id)
	k.log.Err().
		Err(crash).
		Str("process", string(id)).
		Str("stack", string(crash.Stack)).
		Log("kernel: process crashed, terminating it")
}

// Run steps the kernel forward while the next event's delivery time is <=
// until, then advances now to until. It never rewinds time. A canceled ctx
// aborts the run early, returning ErrInterrupted wrapping ctx.Err(); the
// kernel is left in a consistent, paused state and a later call to Run
// with a larger until resumes it (spec.md §5).
func (k *Kernel) Run(ctx context.Context, until vtime.Tick) error {
	for k.queue.Len() > 0 && k.queue[0].deliveryTime <= until {
		if err := ctx.Err(); err != nil {
			k.interrupts++
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		k.Step()
	}
	if err := ctx.Err(); err != nil {
		k.interrupts++
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	k.now = vtime.Max(k.now, until)
	return nil
}

// Pending reports whether any event remains in the queue.
func (k *Kernel) Pending() bool { return k.queue.Len() > 0 }

// NextDeliveryTime returns the delivery time of the earliest queued event
// and true, or (0, false) if the queue is empty. It exists for tests and
// for ExperimentAborted accounting (spec.md §7): a caller that ends a run
// with Pending() true considers the experiment aborted, not complete.
func (k *Kernel) NextDeliveryTime() (vtime.Tick, bool) {
	if k.queue.Len() == 0 {
		return 0, false
	}
	return k.queue[0].deliveryTime, true
}
