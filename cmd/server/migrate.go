package main

import (
	"log/slog"

	"fanpoints/internal/infrastructure/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			dbCfg := cfg.Database
			dbCfg.AutoMigrate = false
			db, err := database.Open(&dbCfg, cfg.Log.SQLLevel)
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			slog.Info("数据库迁移完成", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
