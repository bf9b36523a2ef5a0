// Package app assembles the scoring service from configuration. Both the
// server and the trainer CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/service"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/internal/infrastructure/artifact"
	"github.com/bibbank/fraudscoring/internal/infrastructure/cache"
	"github.com/bibbank/fraudscoring/internal/infrastructure/config"
	"github.com/bibbank/fraudscoring/internal/infrastructure/dataset"
	infrakafka "github.com/bibbank/fraudscoring/internal/infrastructure/kafka"
	"github.com/bibbank/fraudscoring/internal/infrastructure/memory"
	"github.com/bibbank/fraudscoring/internal/infrastructure/messaging"
	"github.com/bibbank/fraudscoring/internal/infrastructure/ml"
	"github.com/bibbank/fraudscoring/internal/infrastructure/postgres"
	"github.com/bibbank/fraudscoring/pkg/auth"
	pkgkafka "github.com/bibbank/fraudscoring/pkg/kafka"
	pgpkg "github.com/bibbank/fraudscoring/pkg/postgres"
)

const meterName = "github.com/bibbank/fraudscoring"

// Options tunes what Build wires.
type Options struct {
	// Metrics creates instruments on the global meter provider.
	Metrics bool
	// Cache enables the score cache when the configured size is positive.
	Cache bool
}

// App holds the wired use cases and the infrastructure they share.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *artifact.FileStore
	Holder    *artifact.Holder
	Runs      port.TrainingRunRepository
	Publisher port.EventPublisher
	Pool      *pgxpool.Pool
	Producer  *pkgkafka.Producer

	Activate *usecase.ActivateModel
	Train    *usecase.TrainModel
	Score    *usecase.ScoreTransaction
	ListRuns *usecase.ListTrainingRuns

	closers []func()
}

// Build wires every component from cfg. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  artifact.NewFileStore(cfg.ArtifactDir, logger.With(slog.String("component", "artifact-store"))),
		Holder: artifact.NewHolder(),
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := a.buildRepository(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildPublisher(); err != nil {
		a.Close()
		return nil, err
	}

	var metrics *usecase.Metrics
	if opts.Metrics {
		m, err := usecase.NewMetrics(otel.Meter(meterName))
		if err != nil {
			a.Close()
			return nil, err
		}
		metrics = m
	}

	threshold, err := valueobject.NewDecisionThreshold(cfg.FraudThreshold)
	if err != nil {
		a.Close()
		return nil, err
	}
	engineer := service.NewFeatureEngineer(cfg.Training.LoginReference, logger)

	trainerCfg := service.DefaultTrainerConfig(cfg.Training.Seed)
	trainerCfg.Workers = cfg.Training.Workers
	trainer, err := service.NewModelTrainer(ml.NewBooster(ml.DefaultBoostingConfig()), trainerCfg, logger.With(slog.String("component", "trainer")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Activate = usecase.NewActivateModel(a.Runs, a.Publisher, logger)
	a.Train = usecase.NewTrainModel(usecase.TrainModelDeps{
		Source:    dataset.NewCSVSource(cfg.DatasetPath, logger),
		Engineer:  engineer,
		Balancer:  service.NewClassBalancer(cfg.Training.SMOTENeighbors, logger),
		Trainer:   trainer,
		Store:     a.Store,
		Holder:    a.Holder,
		Runs:      a.Runs,
		Activator: a.Activate,
		Publisher: a.Publisher,
		Metrics:   metrics,
		Logger:    logger,
	}, cfg.DatasetPath, cfg.Training.Seed)

	// A typed nil *ScoreCache must not reach the port interface.
	var scoreCache port.ScoreCache
	if opts.Cache && cfg.ScoreCacheSize > 0 {
		c, err := cache.NewScoreCache(cfg.ScoreCacheSize)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create score cache: %w", err)
		}
		scoreCache = c
	}
	a.Score = usecase.NewScoreTransaction(a.Holder, service.NewScoringEngine(engineer, threshold, logger), scoreCache, a.Publisher, metrics, logger)
	a.ListRuns = usecase.NewListTrainingRuns(a.Runs)

	return a, nil
}

func (a *App) buildRepository(ctx context.Context) error {
	if a.Config.DatabaseURL == "" {
		a.Logger.Info("DATABASE_URL not set, keeping training history in memory")
		a.Runs = memory.NewTrainingRunRepository()
		return nil
	}

	if err := postgres.Migrate(a.Config.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	pool, err := pgpkg.NewPool(ctx, pgpkg.Config{URL: a.Config.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Runs = postgres.NewTrainingRunRepository(pool)
	a.Logger.Info("connected to database")
	return nil
}

func (a *App) buildPublisher() error {
	brokers := pkgkafka.ParseBrokers(a.Config.Kafka.Brokers)
	if len(brokers) == 0 {
		a.Logger.Info("KAFKA_BROKERS not set, logging domain events")
		a.Publisher = messaging.NewLogPublisher(a.Logger)
		return nil
	}

	producer, err := pkgkafka.NewProducer(a.KafkaConfig())
	if err != nil {
		return err
	}
	a.Producer = producer
	a.closers = append(a.closers, func() {
		if err := producer.Close(); err != nil {
			a.Logger.Error("failed to close kafka producer", slog.String("error", err.Error()))
		}
	})
	a.Publisher = infrakafka.NewPublisher(producer, infrakafka.Topics{
		Events:  a.Config.Kafka.EventsTopic,
		Flagged: a.Config.Kafka.FlaggedTopic,
	}, a.Logger)
	return nil
}

// KafkaConfig returns the connection settings for producers and consumers.
func (a *App) KafkaConfig() pkgkafka.Config {
	return pkgkafka.Config{
		Brokers:       pkgkafka.ParseBrokers(a.Config.Kafka.Brokers),
		ConsumerGroup: a.Config.Kafka.GroupID,
	}
}

// LoadModel swaps the store's current version into the holder and records
// it as live. An empty store is not an error; the service stays unready
// until a model is trained.
func (a *App) LoadModel(ctx context.Context) error {
	bundle, err := a.Store.Load(ctx)
	if errors.Is(err, model.ErrArtifactMissing) {
		a.Logger.Warn("no model available yet, train one to start scoring", slog.String("error", err.Error()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	a.Holder.Swap(bundle)
	a.Logger.Info("model loaded",
		slog.String("version", bundle.Version()),
		slog.Float64("f1_score", bundle.Manifest.F1Score),
	)
	if err := a.Activate.Execute(ctx, bundle); err != nil {
		a.Logger.Error("failed to record model activation", slog.String("error", err.Error()))
	}
	return nil
}

// JWTService builds the token validator from the auth settings. It returns
// nil when no key is configured.
func JWTService(cfg config.Auth) (*auth.JWTService, error) {
	jwtCfg := auth.JWTConfig{Secret: cfg.Secret, PublicKeyPEM: cfg.PublicKey}
	if cfg.PublicKeyFile != "" {
		key, err := auth.LoadKeyFromFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		jwtCfg.PublicKeyPEM = string(key)
	}
	if !jwtCfg.Enabled() {
		return nil, nil
	}
	svc, err := auth.NewJWTService(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure JWT: %w", err)
	}
	return svc, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
