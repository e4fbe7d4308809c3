package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvmigrate/core/internal/config"
	"github.com/dvmigrate/core/internal/telemetry"
)

var (
	configPath      string
	connectionsPath string
	verboseFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "dvmigrate",
	Short: "dvmigrate - tenant-to-tenant record migration engine",
	Long: `dvmigrate reads a previously-exported archive of records from one
tenant and rebuilds that record set in a target tenant, preserving
referential integrity through a tiered, dependency-ordered import.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := config.Initialize(configPath); err != nil {
			return fmt.Errorf("initialize config: %w", err)
		}

		if err := telemetry.Init(telemetry.Config{ServiceName: config.GetString(config.KeyTelemetryServiceName)}); err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a dvmigrate config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&connectionsPath, "connections", "connections.yaml", "Path to the tenant connections file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug-level logging")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
}
