// Package registry manages plugin registration, dependency ordering and the
// init/start/stop lifecycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.PluginResolver = (*Registry)(nil)

// Registry holds every registered plugin.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	order    []string // registration order
	sorted   []string // dependency order, set by Validate
	disabled map[string]string
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds p. Names must be unique and non-empty.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Info().Name
	if name == "" {
		return errors.New("plugin name must not be empty")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	r.order = append(r.order, name)
	r.sorted = nil
	r.logger.Info("plugin registered", zap.String("name", name), zap.String("version", p.Info().Version))
	return nil
}

// Validate checks API versions and dependencies and computes the start order.
// Optional plugins that fail a check are disabled, along with everything that
// depends on them; a failing required plugin is an error.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		info := r.plugins[name].Info()
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			reason := fmt.Sprintf("unsupported API version %d (supported %d-%d)",
				info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
			if err := r.disableLocked(name, reason); err != nil {
				return err
			}
			continue
		}
		for _, dep := range info.Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				if err := r.disableLocked(name, fmt.Sprintf("missing dependency %q", dep)); err != nil {
					return err
				}
				break
			}
		}
	}

	sorted, err := r.topoSortLocked()
	if err != nil {
		return err
	}
	r.sorted = sorted

	for _, name := range r.sorted {
		if _, off := r.disabled[name]; off {
			continue
		}
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, off := r.disabled[dep]; off {
				if err := r.disableLocked(name, fmt.Sprintf("dependency %q disabled", dep)); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// topoSortLocked orders plugins so dependencies precede dependents. Ties keep
// registration order.
func (r *Registry) topoSortLocked() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.order))
	out := make([]string, 0, len(r.order))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %v -> %s", path, name)
		}
		state[name] = visiting
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, name)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Registry) disableLocked(name, reason string) error {
	if r.plugins[name].Info().Required {
		return fmt.Errorf("required plugin %q: %s", name, reason)
	}
	r.disabled[name] = reason
	r.logger.Warn("plugin disabled", zap.String("name", name), zap.String("reason", reason))
	return nil
}

// InitAll initializes every enabled plugin in dependency order. deps builds
// the Dependencies for a plugin by name.
func (r *Registry) InitAll(ctx context.Context, deps func(name string) plugin.Dependencies) error {
	for _, name := range r.enabled() {
		p := r.plugins[name]
		if r.hasDisabledDep(name) {
			if err := r.disable(name, "dependency disabled during init"); err != nil {
				return err
			}
			continue
		}

		r.logger.Info("initializing plugin", zap.String("name", name))
		if err := p.Init(ctx, deps(name)); err != nil {
			if p.Info().Required {
				return fmt.Errorf("failed to initialize plugin %q: %w", name, err)
			}
			if derr := r.disable(name, "init failed: "+err.Error()); derr != nil {
				return derr
			}
			continue
		}
		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if p.Info().Required {
					return fmt.Errorf("invalid config for plugin %q: %w", name, err)
				}
				if derr := r.disable(name, "invalid config: "+err.Error()); derr != nil {
					return derr
				}
			}
		}
	}
	return nil
}

// StartAll starts every enabled plugin in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.enabled() {
		p := r.plugins[name]
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := p.Start(ctx); err != nil {
			if p.Info().Required {
				return fmt.Errorf("failed to start plugin %q: %w", name, err)
			}
			if derr := r.disable(name, "start failed: "+err.Error()); derr != nil {
				return derr
			}
		}
	}
	return nil
}

// StopAll stops enabled plugins in reverse dependency order. Errors are logged.
func (r *Registry) StopAll(ctx context.Context) {
	names := r.enabled()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := r.plugins[name].Stop(ctx); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns a plugin by name, enabled or not.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns every registered plugin, in dependency order once validated.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sorted
	if names == nil {
		names = r.order
	}
	result := make([]plugin.Plugin, 0, len(names))
	for _, name := range names {
		result = append(result, r.plugins[name])
	}
	return result
}

// IsDisabled reports whether name was disabled by validation or lifecycle
// failure.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[name]
	return off
}

// AllRoutes returns the routes of every enabled HTTPProvider keyed by plugin
// name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	routes := make(map[string][]plugin.Route)
	for _, name := range r.enabled() {
		hp, ok := r.plugins[name].(plugin.HTTPProvider)
		if !ok {
			continue
		}
		if pr := hp.Routes(); len(pr) > 0 {
			routes[name] = pr
		}
	}
	return routes
}

func (r *Registry) enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sorted
	if names == nil {
		names = r.order
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, off := r.disabled[name]; !off {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) hasDisabledDep(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dep := range r.plugins[name].Info().Dependencies {
		if _, off := r.disabled[dep]; off {
			return true
		}
	}
	return false
}

func (r *Registry) disable(name, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disableLocked(name, reason)
}
