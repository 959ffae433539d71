// Package main starts the orderflow HTTP service together with the
// reconciliation sweep and the outbox relay.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderflow/auth"
	"orderflow/bid"
	"orderflow/chat"
	"orderflow/config"
	"orderflow/db"
	"orderflow/delivery"
	"orderflow/httpapi"
	"orderflow/order"
	"orderflow/reconcile"
	"orderflow/revenue"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database initialization error", zap.Error(err))
	}
	defer pool.Close()

	userRepo := auth.NewRepository(pool)
	orderRepo := order.NewRepository(pool)
	bidRepo := bid.NewRepository(pool)
	revenueRepo := revenue.NewRepository(pool)
	chatRepo := chat.NewRepository(pool)

	authService := auth.NewService(userRepo, cfg.JWTSecret)
	orderService := order.NewService(pool, orderRepo)
	transitionService := order.NewTransitionService(pool, orderRepo, authService)
	bidService := bid.NewService(pool, bidRepo, orderRepo)
	deliveryService := delivery.NewService(pool, orderRepo, revenueRepo, transitionService)
	chatService := chat.NewService(chatRepo, userRepo, 0)

	server := &http.Server{
		Addr: cfg.RunAddress,
		Handler: httpapi.NewServer(
			logger,
			authService,
			orderService,
			transitionService,
			bidService,
			deliveryService,
			revenueRepo,
			chatService,
		).Router(),
	}

	reconciler := reconcile.NewReconciler(pool, logger, cfg.ReconcileInterval)
	relay := reconcile.NewRelay(pool, logger, nil, cfg.OutboxInterval)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	g.Go(func() error {
		return relay.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("starting orderflow server", zap.String("addr", cfg.RunAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal("application terminated with error", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
}
