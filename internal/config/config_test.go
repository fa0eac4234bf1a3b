package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViperConfigGetters(t *testing.T) {
	v := viper.New()
	v.Set("camera_mode", "http")
	v.Set("switcher_workers", 5)
	v.Set("skip_link_local", true)
	v.Set("ping_timeout", "1s")
	cfg := New(v)

	assert.Equal(t, "http", cfg.GetString("camera_mode"))
	assert.Equal(t, 5, cfg.GetInt("switcher_workers"))
	assert.True(t, cfg.GetBool("skip_link_local"))
	assert.Equal(t, time.Second, cfg.GetDuration("ping_timeout"))
	assert.True(t, cfg.IsSet("camera_mode"))
	assert.False(t, cfg.IsSet("missing"))
}

func TestViperConfigSub(t *testing.T) {
	v := viper.New()
	v.Set("plugins.recon.enabled", true)
	v.Set("plugins.recon.camera_port", 5678)
	cfg := New(v)

	sub := cfg.Sub("plugins.recon")
	require.NotNil(t, sub)
	assert.True(t, sub.GetBool("enabled"))
	assert.Equal(t, 5678, sub.GetInt("camera_port"))
}

func TestViperConfigSubMissing(t *testing.T) {
	cfg := New(viper.New())

	sub := cfg.Sub("plugins.nonexistent")
	require.NotNil(t, sub, "Sub on a missing key should return an empty Config")
	assert.Equal(t, "", sub.GetString("anything"))
}

func TestViperConfigUnmarshalKeepsDefaults(t *testing.T) {
	v := viper.New()
	v.Set("settle_delay", "150ms")
	cfg := New(v)

	target := struct {
		SettleDelay  time.Duration `mapstructure:"settle_delay"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
	}{PollInterval: 50 * time.Millisecond}

	require.NoError(t, cfg.Unmarshal(&target))
	assert.Equal(t, 150*time.Millisecond, target.SettleDelay)
	assert.Equal(t, 50*time.Millisecond, target.PollInterval, "unset keys keep their default")
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	assert.Equal(t, "", cfg.GetString("key"))
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "3001", v.GetString("server.port"))
	assert.Equal(t, 256, v.GetInt("server.max_connections"))
	assert.True(t, v.GetBool("plugins.recon.enabled"))
	assert.False(t, v.GetBool("plugins.tally.enabled"))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchbridge.yaml")
	content := "server:\n  port: \"4000\"\nplugins:\n  recon:\n    camera_mode: http\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SWITCHBRIDGE_SERVER_HOST", "0.0.0.0")

	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "4000", v.GetString("server.port"))
	assert.Equal(t, "0.0.0.0", v.GetString("server.host"))
	assert.Equal(t, "http", New(v).Sub("plugins.recon").GetString("camera_mode"))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
