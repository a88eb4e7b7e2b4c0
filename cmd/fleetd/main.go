package main

import (
	"os"

	"github.com/spf13/cobra"

	"fleet-monitor-backend/config"
	"fleet-monitor-backend/internal/logger"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by subcommands once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "fleetd",
		Short:        "Warehouse robot fleet monitor",
		Long:         "fleetd polls the fleet-status API, tracks robot exceptions and serves them over HTTP.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default $CONFIG_PATH or "+defaultConfigPath+")")

	rootCmd.AddCommand(
		newServeCmd(a),
		newPollCmd(a),
		newBlacklistCmd(a),
	)
	return rootCmd
}

func (a *app) loadConfig() error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	a.cfg = cfg
	return nil
}
