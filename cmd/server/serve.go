package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/config"
	"github.com/iliyamo/groupshare/internal/database"
	"github.com/iliyamo/groupshare/internal/handler"
	"github.com/iliyamo/groupshare/internal/logger"
	"github.com/iliyamo/groupshare/internal/middleware"
	"github.com/iliyamo/groupshare/internal/payment"
	"github.com/iliyamo/groupshare/internal/queue"
	"github.com/iliyamo/groupshare/internal/repository"
	"github.com/iliyamo/groupshare/internal/router"
	"github.com/iliyamo/groupshare/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
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

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unreachable; rate limiting and response cache disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	hasher, err := service.NewTokenHasher(cfg.TokenHashKey)
	if err != nil {
		return fmt.Errorf("token hasher: %w", err)
	}

	offers := repository.NewOfferRepo(db)
	purchases := repository.NewPurchaseRepo(db)
	notifications := repository.NewNotificationRepo(db)
	profiles := repository.NewProfileRepo(db)
	txm := repository.NewTxManager(db)

	var payments service.PaymentProcessor = payment.Sandbox{}
	if cfg.PaymentGatewayURL != "" {
		payments = payment.NewGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey, cfg.PaymentTimeout)
	} else {
		log.Warn("PAYMENT_GATEWAY_URL not set; using the sandbox processor")
	}

	var target service.Deliverer = notifications
	if cfg.RabbitMQURL != "" {
		target = queue.NewPublisher(cfg.RabbitMQURL, cfg.NotificationQueue)
	}

	wf := service.NewPurchaseWorkflow(service.Deps{
		Offers:       offers,
		Purchases:    purchases,
		Transactions: repository.NewTransactionRepo(db),
		Tokens:       repository.NewAccessTokenRepo(db),
		Disputes:     repository.NewDisputeRepo(db),
		Tx:           txm,
		Payments:     payments,
		Notifier:     service.NewNotificationSink(target, log, cfg.NotifyTimeout),
		Hasher:       hasher,
	},
		service.WithLogger(log),
		service.WithBaseURL(cfg.AppBaseURL),
		service.WithAccessTokenTTL(cfg.AccessTokenTTL),
		service.WithHoldTTL(cfg.HoldTTL),
		service.WithDisputeWindow(cfg.DisputeWindow),
	)

	cache := middleware.NewResponseCache(cfg.Cache, rdb, log)
	catalogH := handler.NewCatalogHandler(offers, repository.NewGroupRepo(db), txm, cache, log)
	purchaseH := handler.NewPurchaseHandler(wf, purchases, cfg.PaymentWebhookSecret, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(cfg.JWTSecret, cfg.JWTIssuer),
		middleware.ResolveProfile(profiles, log),
	}
	limit := middleware.RateLimit(cfg.RateLimit, rdb, log)

	router.RegisterRoutes(e, db, catalogH, purchaseH, cache)
	router.RegisterSeller(e, catalogH, auth)
	router.RegisterBuyer(e, purchaseH,
		handler.NewNotificationHandler(notifications, log),
		handler.NewProfileHandler(profiles, log),
		auth, limit)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
