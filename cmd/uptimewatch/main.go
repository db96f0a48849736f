package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimewatch/internal/config"
	"github.com/hazz-dev/uptimewatch/internal/storage"
	"github.com/hazz-dev/uptimewatch/internal/version"
)

var (
	cfgFile   string
	serverURL string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "uptimewatch",
		Short:        "Self-hosted website uptime monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(listCmd())
	root.AddCommand(dashboardCmd())
	root.AddCommand(addCmd())
	root.AddCommand(removeCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig reads --config. A missing default config file falls back to
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Default().Debug("no config file, using defaults", "path", cfgFile)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	dsn := cfg.Storage.Path
	if cfg.Storage.Driver == "postgres" {
		dsn = cfg.Storage.DSN
	}
	db, err := storage.OpenDriver(ctx, cfg.Storage.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Driver, err)
	}
	return db, nil
}
