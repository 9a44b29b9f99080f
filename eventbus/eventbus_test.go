package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/simcore/kernel"
	"github.com/dcsim/simcore/proc"
)

type tick struct{ n int }

// collector spawns as a subscriber and appends every delivered payload to
// *out, in delivery order.
func collector(out *[]any) proc.Body {
	return func(ctx *proc.Context) {
		ctx.Receive(0) // PreStart
		_ = ctx.Send("bus", Subscribe{}, 0)
		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			*out = append(*out, msg.Payload)
		}
	}
}

func TestPublishFansOutToAllSubscribersInOrder(t *testing.T) {
	var a, b []any
	k := kernel.New()
	k.Spawn("bus", New(nil))
	k.Spawn("sub-a", collector(&a))
	k.Spawn("sub-b", collector(&b))

	require.NoError(t, k.Run(context.Background(), 0)) // let both subscribe
	require.NoError(t, k.Send("bus", Publish{Event: tick{1}}, 1))
	require.NoError(t, k.Run(context.Background(), 1))

	assert.Equal(t, []any{tick{1}}, a)
	assert.Equal(t, []any{tick{1}}, b)
}

func TestSubscribeTwiceIsIdempotent(t *testing.T) {
	var a []any
	k := kernel.New()
	k.Spawn("bus", New(nil))
	k.Spawn("sub-a", func(ctx *proc.Context) {
		ctx.Receive(0) // PreStart
		_ = ctx.Send("bus", Subscribe{}, 0)
		_ = ctx.Send("bus", Subscribe{}, 0)
		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			a = append(a, msg.Payload)
		}
	})

	require.NoError(t, k.Run(context.Background(), 0))
	require.NoError(t, k.Send("bus", Publish{Event: tick{7}}, 1))
	require.NoError(t, k.Run(context.Background(), 1))

	assert.Equal(t, []any{tick{7}}, a)
}

func TestUnsubscribeUnknownIsNoOp(t *testing.T) {
	k := kernel.New()
	k.Spawn("bus", New(nil))

	require.NoError(t, k.Send("bus", Unsubscribe{}, 0))
	assert.NotPanics(t, func() {
		require.NoError(t, k.Run(context.Background(), 0))
	})
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	var a []any
	k := kernel.New()
	k.Spawn("bus", New(nil))
	k.Spawn("sub-a", collector(&a))

	require.NoError(t, k.Run(context.Background(), 0))
	require.NoError(t, k.Send("bus", Publish{Event: tick{1}}, 1))
	require.NoError(t, k.Run(context.Background(), 1))
	require.Equal(t, []any{tick{1}}, a) // subscribed: the first publish arrives

	// Unsubscribe on sub-a's behalf (its body never sends one) to exercise
	// the bus's own removal path, which removes the message's sender.
	require.NoError(t, k.Schedule("sub-a", "bus", Unsubscribe{}, 1))
	require.NoError(t, k.Run(context.Background(), 2))
	require.NoError(t, k.Send("bus", Publish{Event: tick{2}}, 1))
	require.NoError(t, k.Run(context.Background(), 3))

	assert.Equal(t, []any{tick{1}}, a)
}

func TestPublisherIdentityIsNotForwarded(t *testing.T) {
	var a []any
	k := kernel.New()
	k.Spawn("bus", New(nil))
	k.Spawn("sub-a", collector(&a))

	require.NoError(t, k.Run(context.Background(), 0))
	require.NoError(t, k.Send("bus", Publish{Event: "anonymous"}, 1))
	require.NoError(t, k.Run(context.Background(), 1))

	require.Len(t, a, 1)
	assert.Equal(t, "anonymous", a[0])
}
