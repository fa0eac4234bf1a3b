package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNoDriver is returned when no switcher driver has been registered.
	ErrNoDriver = errors.New("no switcher driver registered")
	// ErrUnknownDriver is returned for a driver name nobody registered.
	ErrUnknownDriver = errors.New("unknown switcher driver")
	// ErrAmbiguousDriver is returned when no name is given and several
	// drivers are registered.
	ErrAmbiguousDriver = errors.New("several switcher drivers registered, one must be named")
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a driver available by name. It panics if called twice with
// the same name or with a nil factory.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("device: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("device: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// Unregister removes a driver. Intended for tests.
func Unregister(name string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	delete(drivers, name)
}

// Open returns the factory registered under name. An empty name selects the
// only registered driver.
func Open(name string) (Factory, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	if name == "" {
		switch len(drivers) {
		case 0:
			return nil, ErrNoDriver
		case 1:
			for _, f := range drivers {
				return f, nil
			}
		default:
			return nil, ErrAmbiguousDriver
		}
	}
	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return f, nil
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
