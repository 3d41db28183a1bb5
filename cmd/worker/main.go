package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/app"
	"github.com/jwalitptl/careflow-api/internal/handler/health"
	"github.com/jwalitptl/careflow-api/pkg/messaging/redis"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:   "careflow-worker",
		Short: "Outbox delivery worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yml")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return errors.New("the standalone worker needs database.driver=postgres")
	}
	log := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, m := app.NewMetrics()
	broker, err := app.OpenBroker(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer broker.Close()

	checks := map[string]health.Pinger{"database": store}
	if rb, ok := broker.(*redis.RedisBroker); ok {
		checks["redis"] = rb
	}

	a, err := app.New(cfg, log, app.Deps{Store: store, Broker: broker, Registry: reg, Metrics: m})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks).RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	healthSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler: engine,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.OutboxProcessor().Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.OutboxCleanup().Start(ctx)
	}()
	log.Info("Outbox worker started",
		"batch_size", cfg.Outbox.BatchSize,
		"poll_interval", cfg.Outbox.PollInterval.String(),
		"health_port", cfg.Server.HealthPort)

	<-ctx.Done()
	log.Info("Shutting down worker")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Health server shutdown failed")
	}
	log.Info("Worker stopped")
	return nil
}
