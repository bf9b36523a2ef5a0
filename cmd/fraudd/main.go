package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bibbank/fraudscoring/internal/app"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/infrastructure/artifact"
	"github.com/bibbank/fraudscoring/internal/infrastructure/config"
	grpcpresentation "github.com/bibbank/fraudscoring/internal/presentation/grpc"
	"github.com/bibbank/fraudscoring/internal/presentation/rest"
	"github.com/bibbank/fraudscoring/internal/presentation/stream"
	"github.com/bibbank/fraudscoring/pkg/kafka"
	"github.com/bibbank/fraudscoring/pkg/observability"
	pgpkg "github.com/bibbank/fraudscoring/pkg/postgres"
	"github.com/bibbank/fraudscoring/pkg/tlsutil"
)

const serviceName = "fraud-scoring"

func main() {
	if err := run(); err != nil {
		slog.Error("fraud-scoring exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logFormat := cfg.LogFormat
	if logFormat == "" && cfg.IsProduction() {
		logFormat = "json"
	}
	logger := observability.InitLogger(observability.LogConfig{
		Level:   cfg.LogLevel,
		Format:  logFormat,
		Service: serviceName,
	})

	logger.Info("starting fraud-scoring",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"artifact_dir", cfg.ArtifactDir,
	)

	// Initialize tracing.
	tracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    !cfg.IsProduction(),
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tracer.Shutdown(shutdownCtx)
		}()
	}

	// Initialize metrics.
	meterProvider, metricsHandler, err := observability.InitMetrics(observability.MetricsConfig{ServiceName: serviceName})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	// Wire infrastructure and use cases.
	application, err := app.Build(ctx, cfg, logger, app.Options{Metrics: true, Cache: true})
	if err != nil {
		return err
	}
	defer application.Close()

	jwtService, err := app.JWTService(cfg.Auth)
	if err != nil {
		return err
	}

	// gRPC server.
	grpcHandler := grpcpresentation.NewFraudScoringHandler(
		application.Score, application.Train, application.ListRuns, jwtService != nil, logger,
	)
	grpcServer, err := grpcpresentation.NewServer(grpcHandler, grpcpresentation.ServerConfig{
		Address:    cfg.GRPCAddress(),
		Reflection: cfg.GRPCReflection,
		CertFile:   cfg.TLS.CertFile,
		KeyFile:    cfg.TLS.KeyFile,
		CAFile:     cfg.TLS.CAFile,
	}, jwtService, logger)
	if err != nil {
		return err
	}

	// Load the published model, if any.
	if err := application.LoadModel(ctx); err != nil {
		return err
	}
	go grpcServer.TrackReadiness(ctx, application.Holder.Loaded, 5*time.Second)

	// HTTP server.
	checks := map[string]rest.ReadinessCheck{}
	if application.Pool != nil {
		checks["database"] = func(ctx context.Context) error { return pgpkg.HealthCheck(ctx, application.Pool) }
	}
	router := rest.NewRouter(rest.RouterConfig{
		Scoring: rest.NewScoringHandler(application.Score, application.Train, application.ListRuns, jwtService != nil, logger),
		Health:  rest.NewHealthHandler(application.Holder, checks, logger),
		Metrics: metricsHandler,
		JWT:     jwtService,
		Logger:  logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Training runs synchronously inside POST /train.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	if cfg.TLSEnabled() {
		tlsCfg, err := tlsutil.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return fmt.Errorf("failed to load HTTP TLS config: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}

	// Start servers and background workers.
	errCh := make(chan error, 4)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server starting", "address", cfg.HTTPAddress(), "tls", cfg.TLSEnabled())
		var err error
		if cfg.TLSEnabled() {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if cfg.WatchArtifacts {
		watcher := artifact.NewWatcher(application.Store, application.Holder,
			func(ctx context.Context, _, current *model.ArtifactBundle) {
				if err := application.Activate.Execute(ctx, current); err != nil {
					logger.Error("failed to record model activation", "version", current.Version(), "error", err)
				}
			}, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				errCh <- fmt.Errorf("artifact watcher error: %w", err)
			}
		}()
	}

	if application.Producer != nil {
		consumer, err := kafka.NewConsumer(application.KafkaConfig(), cfg.Kafka.ScoringTopic,
			stream.NewScoreConsumer(application.Score, stream.DefaultRetryConfig(), logger).Handle, logger)
		if err != nil {
			return err
		}
		defer func() { _ = consumer.Close() }()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("scoring consumer error: %w", err)
			}
		}()
	}

	logger.Info("fraud-scoring started",
		"grpc_address", cfg.GRPCAddress(),
		"http_address", cfg.HTTPAddress(),
		"environment", cfg.Environment,
		"model_loaded", application.Holder.Loaded(),
	)

	// Wait for shutdown signal.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server error", "error", runErr)
	}

	// Graceful shutdown.
	logger.Info("shutting down fraud-scoring")
	cancel()

	grpcServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("fraud-scoring stopped")
	return runErr
}
