package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deliverydesk/auth"
	"deliverydesk/config"
	"deliverydesk/dashboard"
	"deliverydesk/db"
	"deliverydesk/delivery"
	"deliverydesk/kanban"
	"deliverydesk/logging"
	"deliverydesk/project"
	"deliverydesk/risk"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	server := &Server{
		authService:      auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		projectService:   project.NewService(project.NewRepository(pool), logger),
		deliveryService:  delivery.NewService(delivery.NewRepository(pool), logger),
		budgetService:    delivery.NewBudgetService(pool, delivery.NewRepository(pool), logger),
		riskService:      risk.NewService(pool, nil, logger),
		kanbanService:    kanban.NewService(pool, kanban.NewRepository(pool), logger),
		dashboardService: dashboard.NewService(dashboard.NewRepository(pool), logger),
		log:              logger,
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.routes(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
