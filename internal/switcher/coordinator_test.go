package switcher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/internal/device/devicesim"
	"github.com/HerbHall/switchbridge/internal/testutil"
	"github.com/HerbHall/switchbridge/pkg/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type coordFixture struct {
	coord *Coordinator
	bus   *testutil.MockBus
	clock *testutil.Clock
	net   *devicesim.Network
}

func newCoordFixture(t *testing.T, n *devicesim.Network) *coordFixture {
	t.Helper()
	f := &coordFixture{
		bus:   testutil.NewMockBus(),
		clock: testutil.NewClock(),
		net:   n,
	}
	f.coord = NewCoordinator(n.Factory(), device.DefaultCatalog(), f.bus, f.clock,
		DefaultQueueTiming(), prometheus.NewRegistry(), zap.NewNop())
	f.coord.Start()
	t.Cleanup(f.coord.Stop)
	return f
}

func (f *coordFixture) connect(t *testing.T, addr string) {
	t.Helper()
	require.NoError(t, f.coord.Connect(context.Background(), addr))
}

func (f *coordFixture) waitStatus(t *testing.T, want models.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.coord.Snapshot().Status == want
	}, waitFor, tick, "status never became %s", want)
}

// messages returns every stream message published so far, in order.
func (f *coordFixture) messages() []models.StreamMessage {
	var out []models.StreamMessage
	for _, e := range f.bus.Events() {
		if msg, ok := e.Payload.(models.StreamMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

// programInputs returns the inputs of published program input messages.
func (f *coordFixture) programInputs() []int {
	var out []int
	for _, msg := range f.messages() {
		if msg.IsProgramInput() {
			out = append(out, *msg.Input)
		}
	}
	return out
}

func (f *coordFixture) waitProgram(t *testing.T, input int) {
	t.Helper()
	require.Eventually(t, func() bool {
		in := f.programInputs()
		return len(in) > 0 && in[len(in)-1] == input
	}, waitFor, tick, "program input %d never published", input)
}

func TestCoordinatorConnectSequence(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:     device.Identity{Model: 12, DisplayName: "Studio"},
		ProgramInput: 3,
	})
	f := newCoordFixture(t, n)

	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	require.Eventually(t, func() bool { return len(f.messages()) == 4 }, waitFor, tick)

	three := 3
	assert.Equal(t, []models.StreamMessage{
		{Status: "connecting", IP: "10.0.0.5"},
		{Status: "model ATEM Mini Pro", IP: "10.0.0.5"},
		{Status: models.StatusProgramInput, Input: &three, Label: "3"},
		{Status: "connected", IP: "10.0.0.5"},
	}, f.messages())

	s := f.coord.Snapshot()
	assert.Equal(t, "10.0.0.5", s.Address)
	assert.Equal(t, 12, s.ModelID)
	assert.Equal(t, "ATEM Mini Pro", s.ModelName)
	assert.Equal(t, "Studio", s.DisplayName)
	assert.Equal(t, 4, s.MaxInputs)
	require.NotNil(t, s.LastProgramInput)
	assert.Equal(t, 3, *s.LastProgramInput)

	assert.Len(t, f.bus.Topic(TopicStatus), 3)
	assert.Len(t, f.bus.Topic(TopicProgramInput), 1)
}

func TestCoordinatorProgramInputFiltering(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:     device.Identity{Model: 12},
		ProgramInput: 1,
	})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	sim := n.Last()

	sim.SetProgramInput(6)
	sim.SetProgramInput(3010)
	f.waitProgram(t, 3010)

	// Repeated state changes on the same input are not re-published.
	sim.SetProgramInput(3010)
	sim.SetInTransition(true)
	sim.SetProgramInput(2)
	f.waitProgram(t, 2)

	assert.Equal(t, []int{1, 3010, 2}, f.programInputs(), "input 6 is suppressed on compact models")

	var label string
	for _, msg := range f.messages() {
		if msg.IsProgramInput() && *msg.Input == 3010 {
			label = msg.Label
		}
	}
	assert.Equal(t, "mp1", label)
}

func TestCoordinatorBackToBackProgramChanges(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:     device.Identity{Model: 12},
		ProgramInput: 1,
	})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	f.waitProgram(t, 1)
	sim := n.Last()

	// No waiting in between: each change must be reported from the state
	// it carried, not from whatever the device holds when the loop catches up.
	sim.SetProgramInput(3010)
	sim.SetProgramInput(7)
	sim.SetProgramInput(2)
	f.waitProgram(t, 2)

	assert.Equal(t, []int{1, 3010, 2}, f.programInputs())
	var labels []string
	for _, msg := range f.messages() {
		if msg.IsProgramInput() {
			labels = append(labels, msg.Label)
		}
	}
	assert.Equal(t, []string{"1", "mp1", "2"}, labels)
}

func TestCoordinatorFullModelPublishesHighInputs(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.9", devicesim.Unit{
		Identity:     device.Identity{Model: 9},
		ProgramInput: 1,
	})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.9")
	f.waitStatus(t, models.StatusConnected)

	n.Last().SetProgramInput(6)
	f.waitProgram(t, 6)
	assert.Equal(t, 0, f.coord.Snapshot().MaxInputs)
}

func TestCoordinatorConnectRefused(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{Refuse: true})
	f := newCoordFixture(t, n)

	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusError)
	require.Eventually(t, func() bool { return len(f.messages()) == 2 }, waitFor, tick)

	assert.Equal(t, []models.StreamMessage{
		{Status: "connecting", IP: "10.0.0.5"},
		{Status: "error", IP: "10.0.0.5"},
	}, f.messages())
}

func TestCoordinatorSilentAddressStaysConnecting(t *testing.T) {
	f := newCoordFixture(t, devicesim.NewNetwork())

	f.connect(t, "10.0.0.77")
	assert.Equal(t, models.StatusConnecting, f.coord.Snapshot().Status)

	_, err := f.coord.RequestSwitch(1, TransitionCut)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCoordinatorDisconnectNoReconnect(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12}})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)

	n.Last().Emit(device.LifecycleEvent{Kind: device.EventDisconnected})
	f.waitStatus(t, models.StatusDisconnected)

	msgs := f.messages()
	assert.Equal(t, models.StreamMessage{Status: "disconnected", IP: "10.0.0.5"}, msgs[len(msgs)-1])

	_, err := f.coord.RequestSwitch(1, TransitionCut)
	assert.ErrorIs(t, err, ErrNotConnected)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, n.Switchers(), 1, "a lost connection is not re-established on its own")
}

func TestCoordinatorErrorEventDropsPending(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 9}})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	sim := n.Last()

	sim.SetInTransition(true)
	queued, err := f.coord.RequestSwitch(4, TransitionAuto)
	require.NoError(t, err)
	assert.True(t, queued)
	require.NotNil(t, f.coord.Snapshot().Pending)

	sim.Emit(device.LifecycleEvent{Kind: device.EventError})
	f.waitStatus(t, models.StatusError)
	assert.Nil(t, f.coord.Snapshot().Pending)
}

func TestCoordinatorReconnectReplacesConnection(t *testing.T) {
	n := devicesim.NewNetwork().
		Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12}}).
		Add("10.0.0.6", devicesim.Unit{Identity: device.Identity{Model: 9}})
	f := newCoordFixture(t, n)

	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	first := n.Last()

	f.connect(t, "10.0.0.6")
	require.Eventually(t, func() bool {
		s := f.coord.Snapshot()
		return s.Status == models.StatusConnected && s.Address == "10.0.0.6"
	}, waitFor, tick)

	assert.True(t, first.Closed())
	assert.Len(t, n.Switchers(), 2)
	assert.Equal(t, 9, f.coord.Snapshot().ModelID)
}

func TestCoordinatorIgnoresSupersededEvents(t *testing.T) {
	n := devicesim.NewNetwork().
		Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12}}).
		Add("10.0.0.6", devicesim.Unit{Identity: device.Identity{Model: 12}, ProgramInput: 1})
	f := newCoordFixture(t, n)

	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	f.connect(t, "10.0.0.6")
	require.Eventually(t, func() bool {
		s := f.coord.Snapshot()
		return s.Status == models.StatusConnected && s.Address == "10.0.0.6"
	}, waitFor, tick)

	// A late error from the first connection must not touch the new one.
	f.coord.events <- lifecycleMsg{gen: 1, ev: device.LifecycleEvent{Kind: device.EventError}}
	n.Last().SetProgramInput(2)
	f.waitProgram(t, 2)

	assert.Equal(t, models.StatusConnected, f.coord.Snapshot().Status)
}

func TestCoordinatorRequestSwitch(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:     device.Identity{Model: 12},
		ProgramInput: 1,
	})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	sim := n.Last()

	_, err := f.coord.RequestSwitch(6, TransitionCut)
	assert.ErrorIs(t, err, ErrInputNotAllowed)

	queued, err := f.coord.RequestSwitch(3010, TransitionCut)
	require.NoError(t, err)
	assert.False(t, queued)

	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []devicesim.Command{cmd("preview", 3010), cmd("cut", 3010)}, sim.Commands())
	f.waitProgram(t, 3010)
}

func TestCoordinatorQueuedSwitchAppliesOnce(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:     device.Identity{Model: 9},
		ProgramInput: 1,
	})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)
	sim := n.Last()

	sim.SetInTransition(true)
	for _, req := range []struct {
		in   int
		kind TransitionKind
	}{{3, TransitionAuto}, {5, TransitionAuto}, {2, TransitionCut}} {
		queued, err := f.coord.RequestSwitch(req.in, req.kind)
		require.NoError(t, err)
		assert.True(t, queued)
	}
	assert.Equal(t, &PendingSwitch{Input: 2, Kind: TransitionCut}, f.coord.Snapshot().Pending)

	sim.SetInTransition(false)
	f.clock.Advance(50 * time.Millisecond)
	f.clock.Advance(150 * time.Millisecond)
	f.clock.Advance(100 * time.Millisecond)

	assert.Equal(t, []devicesim.Command{cmd("preview", 2), cmd("cut", 2)}, sim.Commands())
	assert.Nil(t, f.coord.Snapshot().Pending)
}

func TestCoordinatorRunMacro(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{
		Identity:   device.Identity{Model: 12},
		MacroCount: 2,
	})
	f := newCoordFixture(t, n)

	assert.ErrorIs(t, f.coord.RunMacro(-1), ErrNotConnected, "connection is checked first")

	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)

	assert.ErrorIs(t, f.coord.RunMacro(-1), ErrInvalidMacro)
	assert.NoError(t, f.coord.RunMacro(1))
	assert.ErrorIs(t, f.coord.RunMacro(5), devicesim.ErrNoSuchMacro)
	assert.Equal(t, []devicesim.Command{cmd("macro", 1)}, n.Last().Commands())
}

func TestCoordinatorRunMacroUnavailable(t *testing.T) {
	n := devicesim.NewNetwork().
		Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12}, MacroCount: 2}).
		DisableMacros()
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)

	assert.ErrorIs(t, f.coord.RunMacro(0), ErrMacroUnavailable)
}

func TestCoordinatorStop(t *testing.T) {
	n := devicesim.NewNetwork().Add("10.0.0.5", devicesim.Unit{Identity: device.Identity{Model: 12}})
	f := newCoordFixture(t, n)
	f.connect(t, "10.0.0.5")
	f.waitStatus(t, models.StatusConnected)

	f.coord.Stop()
	assert.True(t, n.Last().Closed())
	assert.ErrorIs(t, f.coord.Connect(context.Background(), "10.0.0.5"), ErrStopped)

	// A second Stop is a no-op.
	f.coord.Stop()
}
