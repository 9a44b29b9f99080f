// Package eventbus implements the simulator's publish/subscribe fan-out as
// a distinguished process (spec.md §4.D), rather than as a shared data
// structure: subscribers and publishers only ever interact with it through
// the same kernel send path every other process uses, so fan-out delivery
// is FIFO-within-tick like everything else.
package eventbus

import (
	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/simlog"
)

type (
	// Subscribe registers the sender as a subscriber.
	Subscribe struct{}

	// Unsubscribe removes the sender from the subscriber set.
	Unsubscribe struct{}

	// Publish asks the bus to forward Event to every current subscriber.
	// The bus does not attach or preserve the original publisher's
	// identity on the forwarded message; a caller needing it must encode
	// its own identity inside Event (spec.md §4.D).
	Publish struct {
		Event any
	}
)

// New returns a process Body implementing a bus: Subscribe, Unsubscribe,
// and Publish, as specified. log is nil-safe.
func New(log *simlog.Logger) proc.Body {
	log = simlog.OrDisabled(log)
	return func(ctx *proc.Context) {
		// subscribers is a slice, not a set, so that fan-out iterates in
		// subscription order deterministically (spec.md §4.D).
		var subscribers []proc.ID

		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			switch m := msg.Payload.(type) {
			case Subscribe:
				if !contains(subscribers, msg.From) {
					subscribers = append(subscribers, msg.From)
				}
			case Unsubscribe:
				subscribers = remove(subscribers, msg.From)
			case Publish:
				for _, sub := range subscribers {
					if err := ctx.Send(sub, m.Event, 0); err != nil {
						log.Debug().Str("subscriber", string(sub)).Log("eventbus: failed to forward event")
					}
				}
			default:
				log.Debug().Log("eventbus: ignoring unrecognised message")
			}
		}
	}
}

func contains(ids []proc.ID, id proc.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func remove(ids []proc.ID, id proc.ID) []proc.ID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
