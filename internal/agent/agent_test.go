package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "agent-test", LogLevel: "error", LogFormat: "json"})
}

type countingHooks struct {
	ticks      int32
	startCalls int32
	stopCalls  int32
	tickErr    error
}

func (h *countingHooks) OnStart(ctx context.Context) error {
	atomic.AddInt32(&h.startCalls, 1)
	return nil
}
func (h *countingHooks) OnStop(ctx context.Context) error {
	atomic.AddInt32(&h.stopCalls, 1)
	return nil
}
func (h *countingHooks) Tick(ctx context.Context) error {
	atomic.AddInt32(&h.ticks, 1)
	return h.tickErr
}

func TestBaseTicksRepeatedlyUntilStopped(t *testing.T) {
	hooks := &countingHooks{}
	b := NewBase(RoleScout, 5*time.Millisecond, hooks, testLogger())

	require.NoError(t, b.Start(context.Background()))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Stop(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&hooks.startCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hooks.stopCalls))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hooks.ticks), int32(2))
	assert.False(t, b.Status().Running)
}

func TestBaseTickErrorDoesNotStopLoop(t *testing.T) {
	hooks := &countingHooks{tickErr: errors.New("boom")}
	b := NewBase(RoleAnalyst, 5*time.Millisecond, hooks, testLogger())

	require.NoError(t, b.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Stop(context.Background()))

	assert.GreaterOrEqual(t, atomic.LoadInt32(&hooks.ticks), int32(2))
}

func TestBasePausePreventsTicksUntilResumed(t *testing.T) {
	hooks := &countingHooks{}
	b := NewBase(RoleSentinel, 5*time.Millisecond, hooks, testLogger())
	require.NoError(t, b.Start(context.Background()))

	b.Pause()
	time.Sleep(20 * time.Millisecond)
	pausedCount := atomic.LoadInt32(&hooks.ticks)

	b.Resume()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Stop(context.Background()))

	assert.Greater(t, atomic.LoadInt32(&hooks.ticks), pausedCount)
}

func TestStartTwiceReturnsError(t *testing.T) {
	hooks := &countingHooks{}
	b := NewBase(RoleMemory, time.Second, hooks, testLogger())
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background())

	assert.Error(t, b.Start(context.Background()))
}

func TestSwarmStartAndStopFanOutToEveryAgent(t *testing.T) {
	swarm := NewSwarm(testLogger())
	h1, h2 := &countingHooks{}, &countingHooks{}
	a1 := NewBase(RoleScout, 5*time.Millisecond, h1, testLogger())
	a2 := NewBase(RoleAnalyst, 5*time.Millisecond, h2, testLogger())
	swarm.Register(a1)
	swarm.Register(a2)

	swarm.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	swarm.Stop(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&h1.startCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h2.startCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h1.stopCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h2.stopCalls))
}

func TestSwarmPauseResumeAndStatusByRole(t *testing.T) {
	swarm := NewSwarm(testLogger())
	h := &countingHooks{}
	a := NewBase(RoleExecutor, 5*time.Millisecond, h, testLogger())
	swarm.Register(a)
	swarm.Start(context.Background())
	defer swarm.Stop(context.Background())

	require.NoError(t, swarm.PauseAgent(RoleExecutor))
	require.NoError(t, swarm.ResumeAgent(RoleExecutor))

	status, err := swarm.Status(RoleExecutor)
	require.NoError(t, err)
	assert.True(t, status.Running)

	_, err = swarm.Status(RoleMemory)
	assert.Error(t, err)
}

func TestMailboxDeliversOnlyToSubscribedAddress(t *testing.T) {
	mb := NewMailbox()
	var received []Message
	mb.Subscribe(RoleAnalyst, "new-launch", func(ctx context.Context, msg Message) {
		received = append(received, msg)
	})

	mb.Send(context.Background(), RoleScout, RoleAnalyst, "new-launch", "payload-1")
	mb.Send(context.Background(), RoleScout, RoleStrategist, "execution-plan", "payload-2")

	require.Len(t, received, 1)
	assert.Equal(t, "payload-1", received[0].Payload)
	assert.Equal(t, RoleScout, received[0].From)
}

func TestMailboxBroadcastReachesEveryBroadcastSubscriber(t *testing.T) {
	mb := NewMailbox()
	var countA, countB int32
	mb.Subscribe(RoleBroadcast, "rugs", func(ctx context.Context, msg Message) { atomic.AddInt32(&countA, 1) })
	mb.Subscribe(RoleBroadcast, "rugs", func(ctx context.Context, msg Message) { atomic.AddInt32(&countB, 1) })

	mb.Broadcast(context.Background(), RoleSentinel, "rugs", "mint-x")

	assert.Equal(t, int32(1), atomic.LoadInt32(&countA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&countB))
}
