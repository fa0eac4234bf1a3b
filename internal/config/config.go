// Package config adapts viper to the plugin.Config interface and loads the
// switchbridge configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// EnvPrefix is prepended to every environment override, e.g.
// SWITCHBRIDGE_SERVER_PORT=3001.
const EnvPrefix = "SWITCHBRIDGE"

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config on top of a viper instance.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil viper behaves like an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(rawVal any) error { return c.v.Unmarshal(rawVal) }

func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the subtree rooted at key. A missing key yields an empty
// Config rather than nil so plugins can read defaults unconditionally.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(viper.New())
	}
	return New(sub)
}

// Viper exposes the wrapped instance.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}

// Load builds the process configuration. An explicit path must exist; when
// path is empty, switchbridge.yaml is looked up in the working directory and
// /etc/switchbridge, and its absence is not an error.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("switchbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/switchbridge")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers process-level defaults. Plugin specific tunables
// default inside each plugin's DefaultConfig.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.max_connections", 256)
	v.SetDefault("log.level", "info")

	v.SetDefault("plugins.recon.enabled", true)
	v.SetDefault("plugins.switcher.enabled", true)
	v.SetDefault("plugins.broadcast.enabled", true)
	v.SetDefault("plugins.tally.enabled", false)

	v.SetDefault("sim.model", 12)
	v.SetDefault("sim.macros", 4)
	v.SetDefault("sim.transition", "1s")
}
