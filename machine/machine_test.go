package machine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsim/simcore/kernel"
	"github.com/dcsim/simcore/proc"
	"github.com/dcsim/simcore/simtask"
	"github.com/dcsim/simcore/vtime"
)

func newReadyTask(id simtask.ID, flops int64, cores int) *simtask.Task {
	jobs, err := simtask.BuildTrace(simtask.Trace{Jobs: []simtask.JobSpec{
		{ID: "job-1", Tasks: []simtask.TaskSpec{{ID: id, Flops: flops, Cores: cores}}},
	}})
	if err != nil {
		panic(err)
	}
	t := jobs[0].Tasks[0]
	t.MarkQueued(0)
	return t
}

// replyRecorder spawns as the "scheduler" side of a machine exchange,
// recording every Accept/Decline it receives.
func replyRecorder(out *[]any) proc.Body {
	return func(ctx *proc.Context) {
		ctx.Receive(0) // PreStart
		for {
			msg, ok := ctx.Receive(0)
			if !ok {
				continue
			}
			*out = append(*out, msg.Payload)
		}
	}
}

func TestMachineAcceptsTaskWithinCapacity(t *testing.T) {
	var replies []any
	k := kernel.New()
	m, body := New(Config{CPUs: []CPU{{ClockRateMHz: 1000, Cores: 2}}}, nil)
	k.Spawn("m1", body)
	k.Spawn("sched", replyRecorder(&replies))

	require.NoError(t, k.Run(context.Background(), 0))

	task := newReadyTask("a", 1000, 1)
	require.NoError(t, k.Send("m1", Task{Task: task}, 0))
	// sent with no sender identity, so the Accept reply is dropped; only
	// the machine's own bookkeeping is checked here
	require.NoError(t, k.Run(context.Background(), 0))

	assert.Equal(t, Running, m.Status)
	assert.Equal(t, 1, m.AvailableCores)
}

func TestMachineDeclinesWhenInsufficientCores(t *testing.T) {
	var replies []any
	k := kernel.New()
	m, body := New(Config{CPUs: []CPU{{ClockRateMHz: 1000, Cores: 1}}}, nil)
	k.Spawn("m1", body)
	k.Spawn("sched", replyRecorder(&replies))
	require.NoError(t, k.Run(context.Background(), 0))

	big := newReadyTask("big", 1000, 2)
	// Send "from" sched so the Decline routes back to our recorder.
	sendFrom(t, k, "sched", "m1", Task{Task: big}, 0)
	require.NoError(t, k.Run(context.Background(), 0))

	require.Len(t, replies, 1)
	decline, ok := replies[0].(Decline)
	require.True(t, ok)
	assert.Equal(t, simtask.ID("big"), decline.Task.ID)
	assert.Equal(t, Idle, m.Status)
	assert.Equal(t, 1, m.AvailableCores)
}

func TestMachineCompletesTaskAfterRunTicks(t *testing.T) {
	var replies []any
	k := kernel.New()
	m, body := New(Config{CPUs: []CPU{{ClockRateMHz: 1000, Cores: 1}}}, nil)
	k.Spawn("m1", body)
	k.Spawn("sched", replyRecorder(&replies))
	require.NoError(t, k.Run(context.Background(), 0))

	task := newReadyTask("a", 1000, 1) // runTicks = ceil(1000/(1*1000)) = 1
	sendFrom(t, k, "sched", "m1", Task{Task: task}, 0)
	require.NoError(t, k.Run(context.Background(), 1))

	require.Len(t, replies, 1)
	_, ok := replies[0].(Accept)
	require.True(t, ok)
	assert.True(t, task.Finished())
	assert.Equal(t, Idle, m.Status)
	assert.Equal(t, 1, m.AvailableCores)
	assert.Zero(t, m.Telemetry.MemoryMB)
}

func TestHaltedMachineIgnoresEverything(t *testing.T) {
	k := kernel.New()
	m, body := New(Config{}, nil) // zero cores => Halt
	k.Spawn("m1", body)
	require.Equal(t, Halt, m.Status)

	task := newReadyTask("a", 100, 1)
	require.NoError(t, k.Send("m1", Task{Task: task}, 0))
	require.NoError(t, k.Run(context.Background(), 5))

	assert.Equal(t, Halt, m.Status)
	assert.False(t, task.Finished())
}

func TestMachineTelemetryTracksRunningLoad(t *testing.T) {
	k := kernel.New()
	m, body := New(Config{CPUs: []CPU{{ClockRateMHz: 1000, Cores: 4}}}, nil)
	k.Spawn("m1", body)
	k.Spawn("sched", replyRecorder(new([]any)))
	require.NoError(t, k.Run(context.Background(), 0))

	task := newReadyTask("a", 1000, 2)
	sendFrom(t, k, "sched", "m1", Task{Task: task}, 0)
	require.NoError(t, k.Run(context.Background(), 0))

	assert.Equal(t, int64(50), m.Telemetry.MemoryMB)
	assert.Equal(t, int64(25), m.Telemetry.TemperatureC)
	assert.InDelta(t, 0.5, m.Load, 0.0001)
}

// sendFrom delivers payload to dest as if sent by from, bypassing
// kernel.Send's always-external-sender shorthand.
func sendFrom(t *testing.T, k *kernel.Kernel, from, dest proc.ID, payload any, delay vtime.Tick) {
	t.Helper()
	require.NoError(t, k.Schedule(from, dest, payload, delay))
}
