// Package proc implements the simulator's process runtime: a long-lived
// entity with a private mailbox whose body cooperatively suspends via
// Context.Receive and Context.Hold. Each Process runs its Body on its own
// goroutine, but the goroutine only ever runs between two points: the
// moment the kernel delivers a message, and the moment the body suspends
// again (or returns). The kernel therefore sees, and controls, strictly
// single-threaded execution per spec.md §5, even though each process body
// is mechanically a goroutine underneath (see DESIGN.md for why this
// approach was chosen over an explicit state-machine body).
package proc

import (
	"fmt"
	"runtime/debug"

	"github.com/dcsim/simcore/vtime"
)

type (
	// ID identifies a process within a Kernel. Processes are addressed by
	// path, e.g. "scheduler" or "machine/7".
	ID string

	// Message is what a process receives: a payload plus the ID of the
	// process that sent it (the empty ID for messages injected by an
	// external caller, e.g. a test harness).
	Message struct {
		From    ID
		Payload any
	}

	// Sender is the subset of Kernel a process needs, to schedule
	// messages (including self-sends) with a delay. It is implemented by
	// *kernel.Kernel; defining it here (rather than depending on package
	// kernel) avoids an import cycle, since package kernel depends on
	// package proc to run processes.
	Sender interface {
		Schedule(from, to ID, payload any, delay vtime.Tick) error
	}

	// Body is a process's behavior. It runs on a dedicated goroutine and
	// must suspend only via Context.Receive or Context.Hold; spec.md §5
	// forbids any other operation from blocking for virtual time.
	Body func(ctx *Context)

	// CrashError wraps a panic recovered from a process body. It is never
	// returned for the sentinel used to unwind a stopped process.
	CrashError struct {
		ID    ID
		Value any
		Stack []byte
	}
)

func (e *CrashError) Error() string {
	return fmt.Sprintf("proc %s: panic: %v", e.ID, e.Value)
}

// stopSignal is panicked internally to unwind a process body when Stop is
// called; it is never surfaced as a CrashError.
type stopSignal struct{}

// Context is the handle a Body uses to interact with the kernel: to
// receive messages, to suspend for a fixed duration, and to send further
// messages (including to itself).
type Context struct {
	ID  ID
	Now vtime.Tick

	sender Sender

	turn    chan Message
	settled chan struct{}
	stopped chan struct{}

	owesSettle bool
	buffer     []Message
	nextToken  uint64
}

type timeoutToken struct{ token uint64 }
type holdToken struct{ token uint64 }

func (c *Context) token() uint64 {
	c.nextToken++
	return c.nextToken
}

// Send schedules payload for delivery to dest after delay ticks, as if
// sent by this process (self.send, per spec.md §4.C).
func (c *Context) Send(dest ID, payload any, delay vtime.Tick) error {
	return c.sender.Schedule(c.ID, dest, payload, delay)
}

func (c *Context) settleIfOwed() {
	if c.owesSettle {
		c.owesSettle = false
		c.settled <- struct{}{}
	}
}

// awaitTurn is the only place a process body actually suspends: it tells
// the kernel this turn is complete, then blocks for the next delivery (or
// a Stop).
func (c *Context) awaitTurn() Message {
	c.settleIfOwed()
	select {
	case msg := <-c.turn:
		c.owesSettle = true
		return msg
	case <-c.stopped:
		panic(stopSignal{})
	}
}

// Receive suspends until a message arrives, or timeout ticks elapse
// (timeout <= 0 means wait forever). It returns ok == false exactly once,
// on timeout, per spec.md §4.C.
func (c *Context) Receive(timeout vtime.Tick) (msg Message, ok bool) {
	if len(c.buffer) > 0 {
		msg, c.buffer = c.buffer[0], c.buffer[1:]
		return msg, true
	}

	var tok uint64
	if timeout > 0 {
		tok = c.token()
		_ = c.Send(c.ID, timeoutToken{tok}, timeout)
	}

	msg = c.awaitTurn()
	if timeout > 0 {
		if t, isTimeout := msg.Payload.(timeoutToken); isTimeout && t.token == tok {
			return Message{}, false
		}
	}
	return msg, true
}

// Hold suspends for exactly duration ticks, equivalent to scheduling a
// self-directed wake-up and waiting for it (spec.md §4.C). Any other
// message delivered during the hold is preserved, FIFO, for the next
// Receive call rather than being dropped.
func (c *Context) Hold(duration vtime.Tick) {
	if duration <= 0 {
		return
	}
	tok := c.token()
	_ = c.Send(c.ID, holdToken{tok}, duration)
	for {
		msg := c.awaitTurn()
		if t, isHoldWake := msg.Payload.(holdToken); isHoldWake && t.token == tok {
			return
		}
		c.buffer = append(c.buffer, msg)
	}
}

// Process is the kernel-facing handle for a running Body.
type Process struct {
	ctx      *Context
	finished chan struct{}
	crash    *CrashError
}

// New starts body running on its own goroutine, suspended immediately at
// its first Receive/Hold, waiting for the kernel to deliver the PreStart
// signal (see Deliver).
func New(id ID, sender Sender, body Body) *Process {
	ctx := &Context{
		ID:      id,
		sender:  sender,
		turn:    make(chan Message),
		settled: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	p := &Process{ctx: ctx, finished: make(chan struct{})}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if _, isStop := r.(stopSignal); !isStop {
					p.crash = &CrashError{ID: id, Value: r, Stack: debug.Stack()}
				}
			}
			close(p.finished)
			ctx.settleIfOwed()
		}()
		body(ctx)
	}()

	return p
}

// ID returns the process's identity.
func (p *Process) ID() ID { return p.ctx.ID }

// Deliver hands msg to the process, blocking until it suspends again or
// returns. It is called exactly once per kernel dispatch and must never be
// called concurrently for the same Process (the Kernel enforces this by
// construction: it is single-threaded). It returns a non-nil *CrashError
// if, and only if, the process body panicked while handling this message.
func (p *Process) Deliver(now vtime.Tick, msg Message) *CrashError {
	p.ctx.Now = now
	select {
	case <-p.finished:
		return nil // already terminated; drop silently, per spec.md §4.B.
	default:
	}
	p.ctx.turn <- msg
	<-p.ctx.settled
	return p.crash
}

// Stop unwinds the process body (via a recovered panic at its current
// suspension point) and waits for its goroutine to exit. Safe to call
// only between dispatches, never from within Deliver.
func (p *Process) Stop() {
	select {
	case <-p.finished:
		return
	default:
	}
	close(p.ctx.stopped)
	<-p.finished
}

// Done reports whether the process has terminated (returned or crashed).
func (p *Process) Done() bool {
	select {
	case <-p.finished:
		return true
	default:
		return false
	}
}
