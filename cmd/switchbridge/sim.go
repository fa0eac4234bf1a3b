package main

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/internal/device/devicesim"
)

// registerSimDriver registers the simulated driver when sim.addresses is
// configured. It returns the network, or nil when nothing was registered.
func registerSimDriver(v *viper.Viper, logger *zap.Logger) *devicesim.Network {
	addrs := v.GetStringSlice("sim.addresses")
	if len(addrs) == 0 {
		if len(device.Drivers()) == 0 {
			logger.Warn("no switcher driver registered, switcher control and scanning are unavailable")
		}
		return nil
	}

	model := device.DefaultCatalog().Model(v.GetInt("sim.model"))
	n := devicesim.NewNetwork().SetTransitionDuration(v.GetDuration("sim.transition"))
	for _, addr := range addrs {
		n.Add(addr, devicesim.Unit{
			Identity: device.Identity{
				Model:       model.ID,
				ProductName: model.Name,
				DisplayName: "Simulated " + addr,
			},
			ProgramInput: 1,
			PreviewInput: 2,
			MacroCount:   v.GetInt("sim.macros"),
		})
	}
	device.Register(devicesim.DriverName, n.Factory())

	logger.Info("registered simulated switcher driver",
		zap.Strings("addresses", addrs),
		zap.String("model", model.Name),
	)
	return n
}
