package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/talentloop/internal/config"
	"github.com/okian/talentloop/pkg/logger"
)

const app = "talentloop"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "talentloop turns recruiter feedback into calibration for AI candidate scoring",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides "+config.EnvFile+")")
}

// loadConfig resolves configuration and initializes the global logger from it.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if cfgFile != "" {
		if err := os.Setenv(config.EnvFile, cfgFile); err != nil {
			return nil, fmt.Errorf("set %s: %w", config.EnvFile, err)
		}
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogJSON)); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
