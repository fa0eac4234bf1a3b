// Package devicesim provides an in-process simulated switcher driver.
//
// A Network holds the set of simulated units keyed by address. Switchers
// built by its Factory "connect" to those units without any I/O: an address
// with a unit answers with a connected event, an unknown address stays
// silent like an unreachable host. Tests use the control methods on
// Switcher (SetInTransition, SetProgramInput, Emit) to drive lifecycle and
// state changes.
package devicesim

import (
	"errors"
	"sync"
	"time"

	"github.com/HerbHall/switchbridge/internal/device"
)

// DriverName is the name the simulated driver is registered under.
const DriverName = "sim"

var (
	// ErrNotConnected is returned for commands issued before connected.
	ErrNotConnected = errors.New("simulated switcher not connected")
	// ErrClosed is returned by Connect after Disconnect.
	ErrClosed = errors.New("simulated switcher closed")
	// ErrNoSuchMacro is returned for a macro index beyond MacroCount.
	ErrNoSuchMacro = errors.New("no such macro")
)

const eventBuffer = 64

// Unit describes one simulated switcher.
type Unit struct {
	Identity     device.Identity
	ProgramInput int
	PreviewInput int
	MacroCount   int
	// Refuse makes Connect answer with an error event.
	Refuse bool
}

// Network is a set of simulated units reachable by address.
type Network struct {
	mu         sync.Mutex
	units      map[string]Unit
	noMacros   bool
	transition time.Duration
	created    []*Switcher
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{units: make(map[string]Unit)}
}

// Add places a unit at address, replacing any previous one.
func (n *Network) Add(address string, u Unit) *Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.units[address] = u
	return n
}

// DisableMacros makes the factory build switchers without the macro facility.
func (n *Network) DisableMacros() *Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.noMacros = true
	return n
}

// SetTransitionDuration makes auto transitions animate for d. Zero completes
// them immediately.
func (n *Network) SetTransitionDuration(d time.Duration) *Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transition = d
	return n
}

func (n *Network) lookup(address string) (Unit, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u, ok := n.units[address]
	return u, ok
}

// Factory returns a device.Factory building switchers on this network.
func (n *Network) Factory() device.Factory {
	return func() device.Switcher {
		s := &Switcher{
			net:    n,
			events: make(chan device.LifecycleEvent, eventBuffer),
		}
		n.mu.Lock()
		n.created = append(n.created, s)
		noMacros := n.noMacros
		n.mu.Unlock()
		if noMacros {
			return basic{s}
		}
		return s
	}
}

// Switchers returns every switcher built by the factory so far.
func (n *Network) Switchers() []*Switcher {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Switcher, len(n.created))
	copy(out, n.created)
	return out
}

// Last returns the most recently built switcher, or nil.
func (n *Network) Last() *Switcher {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.created) == 0 {
		return nil
	}
	return n.created[len(n.created)-1]
}

// basic hides RunMacro so the switcher does not satisfy device.MacroRunner.
type basic struct {
	device.Switcher
}

// Command is a command received by a simulated switcher.
type Command struct {
	Name  string
	Input int
}

// Switcher is a simulated connection.
type Switcher struct {
	net *Network

	mu        sync.Mutex
	address   string
	state     device.State
	connected bool
	closed    bool
	events    chan device.LifecycleEvent
	commands  []Command
}

// Connect looks address up on the network. Known units answer with a
// connected event; unknown addresses never answer.
func (s *Switcher) Connect(address string) error {
	u, ok := s.net.lookup(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.address = address
	if !ok {
		return nil
	}
	if u.Refuse {
		s.emitLocked(device.LifecycleEvent{Kind: device.EventError, Err: errors.New("connection refused")})
		return nil
	}
	s.state = device.State{
		Info: u.Identity,
		MixEffects: []device.MixEffect{{
			ProgramInput: u.ProgramInput,
			PreviewInput: u.PreviewInput,
		}},
		MacroCount: u.MacroCount,
	}
	s.connected = true
	s.emitLocked(device.LifecycleEvent{Kind: device.EventConnected})
	return nil
}

// Disconnect closes the events channel. Repeated calls are no-ops.
func (s *Switcher) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.connected {
		s.connected = false
		s.emitLocked(device.LifecycleEvent{Kind: device.EventDisconnected})
	}
	s.closed = true
	close(s.events)
	return nil
}

func (s *Switcher) Events() <-chan device.LifecycleEvent {
	return s.events
}

// State returns a deep copy of the state tree.
func (s *Switcher) State() device.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Switcher) snapshotLocked() device.State {
	st := s.state
	st.MixEffects = append([]device.MixEffect(nil), s.state.MixEffects...)
	return st
}

// Address returns the address passed to Connect.
func (s *Switcher) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Closed reports whether Disconnect has been called.
func (s *Switcher) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Switcher) ChangePreviewInput(input int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.commands = append(s.commands, Command{Name: "preview", Input: input})
	s.state.MixEffects[0].PreviewInput = input
	s.emitLocked(device.LifecycleEvent{Kind: device.EventStateChanged})
	return nil
}

func (s *Switcher) Cut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.commands = append(s.commands, Command{Name: "cut", Input: s.state.MixEffects[0].PreviewInput})
	s.swapLocked()
	return nil
}

// AutoTransition swaps program and preview after the network's transition
// duration, reporting InTransition meanwhile.
func (s *Switcher) AutoTransition() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.commands = append(s.commands, Command{Name: "auto", Input: s.state.MixEffects[0].PreviewInput})

	s.net.mu.Lock()
	d := s.net.transition
	s.net.mu.Unlock()
	if d <= 0 {
		s.swapLocked()
		return nil
	}
	s.state.MixEffects[0].InTransition = true
	s.emitLocked(device.LifecycleEvent{Kind: device.EventStateChanged})
	time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.connected {
			return
		}
		s.state.MixEffects[0].InTransition = false
		s.swapLocked()
	})
	return nil
}

// RunMacro records the macro run. Indexes beyond MacroCount fail.
func (s *Switcher) RunMacro(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if index < 0 || index >= s.state.MacroCount {
		return ErrNoSuchMacro
	}
	s.commands = append(s.commands, Command{Name: "macro", Input: index})
	return nil
}

// Commands returns the commands received so far.
func (s *Switcher) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// SetInTransition sets the transition flag and emits stateChanged.
func (s *Switcher) SetInTransition(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.MixEffects) == 0 {
		s.state.MixEffects = []device.MixEffect{{}}
	}
	s.state.MixEffects[0].InTransition = v
	s.emitLocked(device.LifecycleEvent{Kind: device.EventStateChanged})
}

// SetProgramInput sets the program input and emits stateChanged.
func (s *Switcher) SetProgramInput(input int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.MixEffects) == 0 {
		s.state.MixEffects = []device.MixEffect{{}}
	}
	s.state.MixEffects[0].ProgramInput = input
	s.emitLocked(device.LifecycleEvent{Kind: device.EventStateChanged})
}

// Emit injects a lifecycle event. Disconnected and error events also drop
// the connected flag.
func (s *Switcher) Emit(ev device.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Kind == device.EventDisconnected || ev.Kind == device.EventError {
		s.connected = false
	}
	s.emitLocked(ev)
}

func (s *Switcher) swapLocked() {
	me := &s.state.MixEffects[0]
	me.ProgramInput, me.PreviewInput = me.PreviewInput, me.ProgramInput
	s.emitLocked(device.LifecycleEvent{Kind: device.EventStateChanged})
}

// emitLocked stamps the event with the current state. It drops the event
// when the buffer is full or the channel closed.
func (s *Switcher) emitLocked(ev device.LifecycleEvent) {
	if s.closed {
		return
	}
	ev.State = s.snapshotLocked()
	select {
	case s.events <- ev:
	default:
	}
}
