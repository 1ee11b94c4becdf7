package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/talentloop/internal/app"
	"github.com/okian/talentloop/internal/config"
	"github.com/okian/talentloop/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.DatabaseDriver == config.DriverMemory {
			return fmt.Errorf("%w: nothing to migrate for the memory driver", config.ErrInvalidConfig)
		}

		log := logger.Get()
		st, err := service.OpenStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		log.Info(ctx, "schema is up to date", logger.String("driver", cfg.DatabaseDriver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
