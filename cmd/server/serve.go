package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"fanpoints/internal/config"
	"fanpoints/internal/handler"
	"fanpoints/internal/infrastructure/cache"
	"fanpoints/internal/infrastructure/database"
	"fanpoints/internal/infrastructure/mq"
	"fanpoints/internal/job"
	"fanpoints/internal/service"
	"fanpoints/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database, cfg.Log.SQLLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	points, err := service.NewPointsService(db, redisClient, cfg)
	if err != nil {
		return err
	}

	// Kafka 关闭时 outbox 消息保留在表中，开启后补发
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, producer, &cfg.Jobs)
		go outboxSender.Start(ctx)
	} else {
		slog.Warn("Kafka 未启用，积分事件暂存在 outbox 表中")
	}

	reconcileJob := job.NewReconcileJob(db, &cfg.Jobs)
	go reconcileJob.Start(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(points),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务启动失败: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("服务关闭异常", "error", err)
	}

	slog.Info("服务已关闭")
	return nil
}
