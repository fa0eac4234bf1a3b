package switcher

import "errors"

var (
	// ErrNotConnected rejects commands while no switcher is connected.
	ErrNotConnected = errors.New("switcher not connected")
	// ErrInputNotAllowed rejects inputs the connected model does not have.
	ErrInputNotAllowed = errors.New("input not allowed on this switcher model")
	// ErrMacroUnavailable is returned when the driver has no macro facility.
	ErrMacroUnavailable = errors.New("macro system unavailable on this switcher")
	// ErrInvalidMacro rejects negative macro indexes.
	ErrInvalidMacro = errors.New("invalid macro index")
	// ErrStopped is returned by Connect once the coordinator has stopped.
	ErrStopped = errors.New("coordinator stopped")
)
