package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/config"
	"github.com/HerbHall/switchbridge/internal/event"
	"github.com/HerbHall/switchbridge/internal/recon"
	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

var scanJSON bool

func init() {
	scanCmd.PersistentFlags().BoolVar(&scanJSON, "json", false, "print results as JSON")
	scanCmd.AddCommand(scanSwitchersCmd, scanCamerasCmd)
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-off discovery scan",
	Long: `Scan the local subnets once and print what was found. The result
artifacts are written exactly as the server writes them.`,
}

var scanSwitchersCmd = &cobra.Command{
	Use:   "switchers",
	Short: "Discover production switchers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runScan(cmd, func(ctx context.Context, m *recon.Module, out io.Writer) error {
			found, err := m.ScanSwitchers(ctx)
			if err != nil {
				return err
			}
			return printSwitchers(out, found, scanJSON)
		})
	},
}

var scanCamerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Discover PTZ cameras",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runScan(cmd, func(ctx context.Context, m *recon.Module, out io.Writer) error {
			found, err := m.ScanCameras(ctx)
			if err != nil {
				return err
			}
			return printCameras(out, found, scanJSON)
		})
	},
}

func runScan(cmd *cobra.Command, scan func(context.Context, *recon.Module, io.Writer) error) error {
	v, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	registerSimDriver(v, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := newReconModule(ctx, v, logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Stop(ctx) }()

	return scan(ctx, m, cmd.OutOrStdout())
}

// newReconModule builds a started recon module outside the plugin registry.
func newReconModule(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*recon.Module, error) {
	m := recon.New()
	err := m.Init(ctx, plugin.Dependencies{
		Config: config.New(v).Sub("plugins.recon"),
		Logger: logger.Named("recon"),
		Bus:    event.NewBus(logger.Named("event")),
	})
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func printSwitchers(out io.Writer, found []models.DiscoveredSwitcher, asJSON bool) error {
	if asJSON {
		if found == nil {
			found = []models.DiscoveredSwitcher{}
		}
		return writeJSON(out, found)
	}
	if len(found) == 0 {
		_, err := fmt.Fprintln(out, "No switchers found.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tMODEL\tNAME")
	for _, s := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.IP, s.Model, s.Name)
	}
	return tw.Flush()
}

func printCameras(out io.Writer, found []models.DiscoveredCamera, asJSON bool) error {
	if asJSON {
		if found == nil {
			found = []models.DiscoveredCamera{}
		}
		return writeJSON(out, found)
	}
	if len(found) == 0 {
		_, err := fmt.Fprintln(out, "No cameras found.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tIP")
	for i, c := range found {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, c.IP)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
