package main

import (
	"fanpoints/internal/config"
	"fanpoints/internal/infrastructure/logging"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fanpoints",
		Short:         "Fan points ledger service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "config file path (empty for defaults and env only)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newAuditCmd(opts),
	)
	return cmd
}

// load 读取配置并初始化日志，所有子命令共用
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.Level)
	return cfg, nil
}
