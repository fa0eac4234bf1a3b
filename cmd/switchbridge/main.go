// Switchbridge discovers production switchers and PTZ cameras on the local
// subnets, holds one connection to a selected switcher and streams its
// connection and program input events to control surfaces.
//
// Usage:
//
//	switchbridge serve [--config switchbridge.yaml]
//	switchbridge scan switchers|cameras
//	switchbridge version
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/config"
	"github.com/HerbHall/switchbridge/internal/version"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "switchbridge",
	Short: "Switcher discovery and control bridge",
	Long: `Switchbridge finds live-production switchers and PTZ cameras on the
local subnets, keeps a single connection to the selected switcher and
exposes switching, macros and an event stream over HTTP.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default ./switchbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}

// setup loads the configuration and builds the process logger.
func setup() (*viper.Viper, *zap.Logger, error) {
	v, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	logger, err := newLogger(v.GetString("log.level"))
	if err != nil {
		return nil, nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("loaded configuration", zap.String("path", used))
	}
	return v, logger, nil
}

// newLogger returns a production logger at level, or a development logger
// when level is debug.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}
