package main

import (
	"encoding/json"
	"fmt"

	"fanpoints/internal/infrastructure/database"
	"fanpoints/internal/service"

	"github.com/spf13/cobra"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay a user's ledger and compare it with the stored balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			db, err := database.Open(&cfg.Database, cfg.Log.SQLLevel)
			if err != nil {
				return err
			}
			points, err := service.NewPointsService(db, nil, cfg)
			if err != nil {
				return err
			}

			report, err := points.Audit(cmd.Context(), userID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Consistent {
				return fmt.Errorf("user %s: balance %d does not match replayed ledger %d", userID, report.Balance, report.Replayed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to audit")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
