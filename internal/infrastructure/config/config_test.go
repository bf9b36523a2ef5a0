package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/infrastructure/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.GRPCAddress())
	assert.Equal(t, ":9088", cfg.HTTPAddress())
	assert.Equal(t, "data/preprocessed_dataset.csv", cfg.DatasetPath)
	assert.Equal(t, "data/artifacts", cfg.ArtifactDir)
	assert.InDelta(t, 0.3, cfg.FraudThreshold, 1e-12)
	assert.Equal(t, uint64(42), cfg.Training.Seed)
	assert.Equal(t, 5, cfg.Training.SMOTENeighbors)
	assert.Equal(t, model.LoginReferenceTransaction, cfg.Training.LoginReference)
	assert.Equal(t, 4096, cfg.ScoreCacheSize)
	assert.True(t, cfg.WatchArtifacts)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "fraud.transactions.v1", cfg.Kafka.ScoringTopic)
	assert.False(t, cfg.TLSEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GRPC_PORT", "7000")
	t.Setenv("FRAUD_THRESHOLD", "0.45")
	t.Setenv("TRAINING_SEED", "7")
	t.Setenv("TRAINING_WORKERS", "2")
	t.Setenv("LOGIN_REFERENCE", "NOW")
	t.Setenv("WATCH_ARTIFACTS", "false")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.GRPCAddress())
	assert.InDelta(t, 0.45, cfg.FraudThreshold, 1e-12)
	assert.Equal(t, uint64(7), cfg.Training.Seed)
	assert.Equal(t, 2, cfg.Training.Workers)
	assert.Equal(t, model.LoginReferenceNow, cfg.Training.LoginReference)
	assert.False(t, cfg.WatchArtifacts)
	assert.Equal(t, "a:9092,b:9092", cfg.Kafka.Brokers)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCORE_CACHE_SIZE", "lots")
	t.Setenv("GRPC_REFLECTION", "maybe")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ScoreCacheSize)
	assert.True(t, cfg.GRPCReflection)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "threshold above one", env: map[string]string{"FRAUD_THRESHOLD": "1.5"}},
		{name: "zero threshold", env: map[string]string{"FRAUD_THRESHOLD": "0"}},
		{name: "unknown login reference", env: map[string]string{"LOGIN_REFERENCE": "yesterday"}},
		{name: "no workers", env: map[string]string{"TRAINING_WORKERS": "0"}},
		{name: "cert without key", env: map[string]string{"TLS_CERT_FILE": "server.crt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
