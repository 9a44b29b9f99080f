// Package vtime defines the virtual-time unit shared by every simulator
// component. It has no dependencies so that the kernel, the data model, and
// the machine/scheduler processes can all depend on it without coupling to
// each other.
package vtime

import "fmt"

// Tick is the simulator's virtual clock unit: a monotonically
// non-decreasing integer. It is never derived from the host clock.
type Tick int64

// Max returns the larger of a and b.
func Max(a, b Tick) Tick {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Tick) Tick {
	if a < b {
		return a
	}
	return b
}

func (t Tick) String() string {
	return fmt.Sprintf("%dt", int64(t))
}
