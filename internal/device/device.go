// Package device defines the boundary to switcher control protocols.
//
// switchbridge does not speak any switcher wire protocol itself. A protocol
// implementation registers a driver (see Register) whose Factory builds
// Switcher connection objects. A Switcher reports its lifecycle on the
// channel returned by Events and exposes a readable State snapshot plus the
// handful of commands the coordinator issues.
package device

// EventKind identifies a connection lifecycle event.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventStateChanged EventKind = "stateChanged"
	EventError        EventKind = "error"
)

// LifecycleEvent is emitted by a Switcher on its Events channel. Connected
// and stateChanged events carry the state as of the moment they fired, so
// consumers that fall behind still observe every intermediate change.
type LifecycleEvent struct {
	Kind  EventKind
	Err   error
	State State
}

// Identity is the device identity block read back after connecting. It is
// serialized as a whole to fingerprint physical units, so drivers must only
// populate fields that are stable for a given unit.
type Identity struct {
	Model           int    `json:"model"`
	ProductName     string `json:"productIdentifier,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	ProtocolVersion string `json:"apiVersion,omitempty"`
}

// MixEffect is the state of one mix effect bus.
type MixEffect struct {
	ProgramInput int
	PreviewInput int
	InTransition bool
}

// State is a snapshot of the device state tree.
type State struct {
	Info       Identity
	MixEffects []MixEffect
	MacroCount int
}

// ProgramInput returns the program input of the first mix effect, if the
// device has reported one.
func (s State) ProgramInput() (int, bool) {
	if len(s.MixEffects) == 0 {
		return 0, false
	}
	return s.MixEffects[0].ProgramInput, true
}

// InTransition reports whether the first mix effect is mid-transition.
func (s State) InTransition() bool {
	return len(s.MixEffects) > 0 && s.MixEffects[0].InTransition
}

// Switcher is a single protocol connection to a switcher.
type Switcher interface {
	// Connect starts connecting to address and returns immediately. The
	// outcome is reported as an EventConnected or EventError.
	Connect(address string) error
	// Disconnect tears the connection down. It is safe to call more than once.
	Disconnect() error
	// Events returns the lifecycle channel. It is closed after Disconnect.
	Events() <-chan LifecycleEvent
	// State returns a copy of the current state tree.
	State() State

	ChangePreviewInput(input int) error
	Cut() error
	AutoTransition() error
}

// MacroRunner is implemented by switchers whose driver exposes the macro
// facility.
type MacroRunner interface {
	RunMacro(index int) error
}

// Factory builds a fresh, unconnected Switcher.
type Factory func() Switcher
