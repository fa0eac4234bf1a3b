// Package plugin defines the contracts shared by every switchbridge module:
// the lifecycle interface, the dependencies handed to a module at Init, HTTP
// routes and the in-process event bus.
package plugin

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Plugin API versions understood by the registry.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// PluginInfo describes a module to the registry.
type PluginInfo struct {
	Name         string
	Version      string
	Description  string
	Dependencies []string
	// Required plugins abort startup when they fail to validate, init or start.
	// Optional plugins are disabled instead.
	Required   bool
	APIVersion int
}

// Dependencies are injected into a plugin at Init.
type Dependencies struct {
	Config  Config
	Logger  *zap.Logger
	Bus     EventBus
	Metrics prometheus.Registerer
	Plugins PluginResolver
}

// Plugin is the lifecycle every module implements.
type Plugin interface {
	Info() PluginInfo
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PluginResolver looks up other registered plugins by name.
type PluginResolver interface {
	Get(name string) (Plugin, bool)
}

// Route represents an HTTP route exposed by a plugin. Paths are mounted
// under /api/v1/{plugin}.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Config is the read-only configuration view handed to a plugin. It is
// scoped to the plugin's own section ("plugins.<name>").
type Config interface {
	Unmarshal(rawVal any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}
