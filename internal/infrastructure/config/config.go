package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// Config holds all configuration for the fraud scoring service.
type Config struct {
	GRPCPort       string
	HTTPPort       string
	Environment    string
	LogLevel       string
	LogFormat      string
	GRPCReflection bool

	DatasetPath    string
	ArtifactDir    string
	FraudThreshold float64

	Training Training

	ScoreCacheSize int
	WatchArtifacts bool

	DatabaseURL string

	Kafka Kafka
	Auth  Auth
	TLS   TLS

	OTLPEndpoint string
}

// Training configures the training pipeline.
type Training struct {
	Seed           uint64
	Workers        int
	SMOTENeighbors int
	LoginReference model.LoginReference
}

// Kafka configures the event and scoring streams. Empty Brokers disables Kafka.
type Kafka struct {
	Brokers      string
	ScoringTopic string
	EventsTopic  string
	FlaggedTopic string
	GroupID      string
}

// Auth configures JWT verification. Auth is off when no key is set.
type Auth struct {
	Secret        string
	PublicKey     string
	PublicKeyFile string
}

// TLS configures transport security. TLS is off unless both cert and key are set.
type TLS struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Load reads configuration from a .env file, when present, and environment
// variables with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		GRPCPort:       getEnv("GRPC_PORT", "8088"),
		HTTPPort:       getEnv("HTTP_PORT", "9088"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", ""),
		GRPCReflection: getEnvBool("GRPC_REFLECTION", true),

		DatasetPath:    getEnv("DATASET_PATH", "data/preprocessed_dataset.csv"),
		ArtifactDir:    getEnv("ARTIFACT_DIR", "data/artifacts"),
		FraudThreshold: getEnvFloat("FRAUD_THRESHOLD", valueobject.DefaultDecisionThreshold),

		Training: Training{
			Seed:           uint64(getEnvInt("TRAINING_SEED", 42)),
			Workers:        getEnvInt("TRAINING_WORKERS", runtime.NumCPU()),
			SMOTENeighbors: getEnvInt("SMOTE_NEIGHBORS", 5),
			LoginReference: model.LoginReference(strings.ToLower(getEnv("LOGIN_REFERENCE", string(model.LoginReferenceTransaction)))),
		},

		ScoreCacheSize: getEnvInt("SCORE_CACHE_SIZE", 4096),
		WatchArtifacts: getEnvBool("WATCH_ARTIFACTS", true),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Kafka: Kafka{
			Brokers:      getEnv("KAFKA_BROKERS", ""),
			ScoringTopic: getEnv("KAFKA_SCORING_TOPIC", "fraud.transactions.v1"),
			EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "fraud.model.events"),
			FlaggedTopic: getEnv("KAFKA_FLAGGED_TOPIC", "fraud.transaction.flagged"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "fraud-scoring"),
		},

		Auth: Auth{
			Secret:        getEnv("JWT_SECRET", ""),
			PublicKey:     getEnv("JWT_PUBLIC_KEY", ""),
			PublicKeyFile: getEnv("JWT_PUBLIC_KEY_FILE", ""),
		},

		TLS: TLS{
			CertFile: getEnv("TLS_CERT_FILE", ""),
			KeyFile:  getEnv("TLS_KEY_FILE", ""),
			CAFile:   getEnv("TLS_CA_FILE", ""),
		},

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if _, err := valueobject.NewDecisionThreshold(c.FraudThreshold); err != nil {
		return fmt.Errorf("invalid FRAUD_THRESHOLD: %w", err)
	}
	switch c.Training.LoginReference {
	case model.LoginReferenceTransaction, model.LoginReferenceNow:
	default:
		return fmt.Errorf("invalid LOGIN_REFERENCE %q: want %q or %q",
			c.Training.LoginReference, model.LoginReferenceTransaction, model.LoginReferenceNow)
	}
	if c.Training.Workers < 1 {
		return fmt.Errorf("invalid TRAINING_WORKERS %d", c.Training.Workers)
	}
	if c.Training.SMOTENeighbors < 1 {
		return fmt.Errorf("invalid SMOTE_NEIGHBORS %d", c.Training.SMOTENeighbors)
	}
	if c.ScoreCacheSize < 0 {
		return fmt.Errorf("invalid SCORE_CACHE_SIZE %d", c.ScoreCacheSize)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// GRPCAddress returns the full gRPC listen address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf(":%s", c.GRPCPort)
}

// HTTPAddress returns the full HTTP listen address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// TLSEnabled reports whether the servers should terminate TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return b
}
