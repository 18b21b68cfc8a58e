package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/config"
	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/gateway"
	"github.com/feedbackhub/review-attribution-service/internal/repository/postgres"
	"github.com/feedbackhub/review-attribution-service/internal/scraper"
	"github.com/feedbackhub/review-attribution-service/internal/service"
	myhttp "github.com/feedbackhub/review-attribution-service/internal/transport/http"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/slogpretty"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting review-attribution-service", slog.String("env", cfg.Env))

	errChan := make(chan error, 1)

	db, err := postgres.NewDB(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to init db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("db close failed", sl.Err(err))
		}
	}()

	requestRepo := postgres.NewRequestRepository(db, log)
	reviewRepo := postgres.NewExternalReviewRepository(db, log)
	businessRepo := postgres.NewBusinessRepository(db, log)

	dispatcher := dispatch.NewClient(cfg.Scheduler, log)
	verifier := dispatch.NewVerifier(cfg.Scheduler.SigningKey, cfg.Scheduler.NextSigningKey)
	sources := scraper.New(cfg.Scraper, log)
	messenger := gateway.NewSMSClient(cfg.Gateway, log)

	requestService := service.NewRequestService(log, requestRepo, businessRepo, messenger, cfg.Scheduler.CallbackBaseURL)
	trackerService := service.NewTrackerService(log, requestRepo, dispatcher, cfg.Scheduler.Delay)
	intakeService := service.NewIntakeService(log, requestRepo, businessRepo, cfg.Attribution.PositiveThreshold)
	attributionService := service.NewAttributionService(log, requestRepo, reviewRepo, businessRepo, sources, cfg.Attribution.MatchWindow)

	if cfg.Reconciler.Enabled {
		reconciler := service.NewReconciler(log, requestRepo, dispatcher, cfg.Scheduler.Delay, cfg.Reconciler.Grace)
		if err := reconciler.Start(cfg.Reconciler.CronSpec); err != nil {
			return fmt.Errorf("failed to start reconciler: %v", err)
		}
		defer reconciler.Stop()
	}

	srv := myhttp.NewServer(log, requestService, trackerService, intakeService, attributionService, verifier)
	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Routes(),
	}

	go startServer(log, httpServer, errChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server error: %v", err)

	case <-ctx.Done():
		log.Info("stopping server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down http server: %v", err)
	}

	return nil
}

func startServer(log *slog.Logger, httpServer *http.Server, errChan chan error) {
	defer close(errChan)

	log.Info("service started", slog.String("addr", httpServer.Addr))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("error listening and serving: %v", err)
	}
}
