package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/switchbridge/internal/config"
	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/internal/device/devicesim"
	"github.com/HerbHall/switchbridge/pkg/models"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger("DEBUG")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestEnabledPluginsDefaults(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)

	var names []string
	for _, p := range enabledPlugins(v) {
		names = append(names, p.Info().Name)
	}
	assert.Equal(t, []string{"recon", "switcher", "broadcast"}, names)

	v.Set("plugins.tally.enabled", true)
	v.Set("plugins.recon.enabled", false)
	names = names[:0]
	for _, p := range enabledPlugins(v) {
		names = append(names, p.Info().Name)
	}
	assert.Equal(t, []string{"switcher", "broadcast", "tally"}, names)
}

func TestRegisterSimDriver(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	assert.Nil(t, registerSimDriver(v, zap.NewNop()))

	v.Set("sim.addresses", []string{"10.0.0.5"})
	n := registerSimDriver(v, zap.NewNop())
	require.NotNil(t, n)
	t.Cleanup(func() { device.Unregister(devicesim.DriverName) })

	f, err := device.Open(devicesim.DriverName)
	require.NoError(t, err)
	sw := f()
	require.NoError(t, sw.Connect("10.0.0.5"))
	defer sw.Disconnect()

	info := sw.State().Info
	assert.Equal(t, 12, info.Model)
	assert.Equal(t, "ATEM Mini Pro", info.ProductName)
	assert.Equal(t, 4, sw.State().MacroCount)
}

func TestPrintSwitchers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSwitchers(&buf, []models.DiscoveredSwitcher{
		{IP: "10.0.0.5", ModelID: 12, Model: "ATEM Mini Pro", Name: "Studio"},
	}, false))
	assert.Equal(t, "IP        MODEL          NAME\n10.0.0.5  ATEM Mini Pro  Studio\n", buf.String())

	buf.Reset()
	require.NoError(t, printSwitchers(&buf, nil, true))
	assert.JSONEq(t, `[]`, buf.String())

	buf.Reset()
	require.NoError(t, printSwitchers(&buf, nil, false))
	assert.Equal(t, "No switchers found.\n", buf.String())
}

func TestPrintCameras(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printCameras(&buf, []models.DiscoveredCamera{{IP: "10.0.0.20"}, {IP: "10.0.0.21"}}, false))
	assert.Equal(t, "#  IP\n1  10.0.0.20\n2  10.0.0.21\n", buf.String())

	buf.Reset()
	require.NoError(t, printCameras(&buf, []models.DiscoveredCamera{{IP: "10.0.0.20"}}, true))
	assert.JSONEq(t, `[{"ip":"10.0.0.20"}]`, buf.String())
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "switchbridge dev")
}
