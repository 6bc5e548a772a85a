package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/config"
	"github.com/iliyamo/groupshare/internal/database"
	"github.com/iliyamo/groupshare/internal/logger"
	"github.com/iliyamo/groupshare/internal/queue"
	"github.com/iliyamo/groupshare/internal/repository"
)

// workerCmd drains the notification queue into the notifications table.
// It is only needed when the API publishes to RabbitMQ.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications-worker",
		Short: "Persist notification events from RabbitMQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is required for the notifications worker")
			}
			log, err := logger.New(cfg.LogLevel, cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Open(ctx, cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info("notifications worker started", zap.String("queue", cfg.NotificationQueue))
			c := queue.NewConsumer(cfg.RabbitMQURL, cfg.NotificationQueue, repository.NewNotificationRepo(db), log)
			if err := c.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}
}
