// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tejzpr/dayline/internal/app"
	"github.com/tejzpr/dayline/internal/config"
	"github.com/tejzpr/dayline/internal/logger"
)

// Version is set at build time via ldflags (e.g. -X main.Version=1.2.0).
var Version string

type globalFlags struct {
	configPath  string
	environment string
	dataDir     string
	inMemory    bool
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "dayline",
		Short:         "Cross-referenced local index of meetings, people, documents and websites",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default ~/.dayline/configs/config.json)")
	rootCmd.PersistentFlags().StringVarP(&flags.environment, "env", "e", "", "Database environment: production, test or isolated")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "SQLite data directory")
	rootCmd.PersistentFlags().BoolVar(&flags.inMemory, "in-memory", false, "Use a private in-memory database")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newIngestCmd(flags),
		newSearchCmd(flags),
		newCleanupCmd(flags),
		newHealthCmd(flags),
	)
	return rootCmd
}

// loadConfig reads the config file and applies flag overrides. Flags win
// over environment variables, which win over the file.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFromPath(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if flags.environment != "" {
		if !config.IsValidEnvironment(flags.environment) {
			return nil, fmt.Errorf("--env must be one of %v, got '%s'", config.ValidEnvironments(), flags.environment)
		}
		cfg.Database.Environment = flags.environment
	}
	if flags.dataDir != "" {
		cfg.Database.DataDir = flags.dataDir
	}
	if flags.inMemory {
		cfg.Database.InMemory = true
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logger.New("dayline", cfg.Log.Level)
}

// openApp loads configuration and opens the instance for a one-shot command
func openApp(ctx context.Context, flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, newLogger(cfg))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
