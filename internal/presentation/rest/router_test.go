package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/service"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/internal/infrastructure/artifact"
	"github.com/bibbank/fraudscoring/internal/infrastructure/memory"
	"github.com/bibbank/fraudscoring/internal/infrastructure/ml"
	"github.com/bibbank/fraudscoring/internal/presentation/rest"
	"github.com/bibbank/fraudscoring/pkg/auth"
	"github.com/bibbank/fraudscoring/pkg/events"
)

type constClassifier struct{ p float64 }

func (c constClassifier) PredictProba([]float64) float64 { return c.p }
func (c constClassifier) NumFeatures() int               { return 2 }

type failingSource struct{}

func (failingSource) Load(context.Context) (model.RawDataset, error) {
	return model.RawDataset{}, &model.DataError{Path: "data.csv", Reason: "dataset not found"}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...events.DomainEvent) error { return nil }

type routerOptions struct {
	jwt    *auth.JWTService
	checks map[string]rest.ReadinessCheck
}

func newRouter(t *testing.T, holder *artifact.Holder, opts routerOptions) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	threshold, err := valueobject.NewDecisionThreshold(valueobject.DefaultDecisionThreshold)
	require.NoError(t, err)
	engineer := service.NewFeatureEngineer(model.LoginReferenceTransaction, logger)
	trainer, err := service.NewModelTrainer(ml.NewBooster(ml.DefaultBoostingConfig()), service.DefaultTrainerConfig(1), logger)
	require.NoError(t, err)
	runs := memory.NewTrainingRunRepository()

	train := usecase.NewTrainModel(usecase.TrainModelDeps{
		Source:    failingSource{},
		Engineer:  engineer,
		Balancer:  service.NewClassBalancer(service.DefaultSMOTENeighbors, logger),
		Trainer:   trainer,
		Store:     artifact.NewFileStore(t.TempDir(), logger),
		Holder:    holder,
		Runs:      runs,
		Activator: usecase.NewActivateModel(runs, nopPublisher{}, logger),
		Publisher: nopPublisher{},
		Logger:    logger,
	}, "data.csv", 1)

	scoring := rest.NewScoringHandler(
		usecase.NewScoreTransaction(holder, service.NewScoringEngine(engineer, threshold, logger), nil, nopPublisher{}, nil, logger),
		train,
		usecase.NewListTrainingRuns(runs),
		opts.jwt != nil,
		logger,
	)
	return rest.NewRouter(rest.RouterConfig{
		Scoring: scoring,
		Health:  rest.NewHealthHandler(holder, opts.checks, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		JWT:    opts.jwt,
		Logger: logger,
	})
}

func loadedHolder(t *testing.T, p float64) *artifact.Holder {
	t.Helper()
	schema, err := model.NewFeatureSchema([]string{"amount", model.ColumnCategory})
	require.NoError(t, err)
	h := artifact.NewHolder()
	h.Swap(&model.ArtifactBundle{
		Manifest:   model.ArtifactManifest{Version: "v1", LoginReference: model.LoginReferenceTransaction},
		Classifier: constClassifier{p: p},
		Encoder:    model.FitCategoryEncoder([]string{"online"}),
		Features:   schema,
	})
	return h
}

func do(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("healthz is always ok", func(t *testing.T) {
		rec := do(newRouter(t, artifact.NewHolder(), routerOptions{}), http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz needs a model", func(t *testing.T) {
		rec := do(newRouter(t, artifact.NewHolder(), routerOptions{}), http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body rest.ReadinessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "not loaded", body.Checks["model"])

		rec = do(newRouter(t, loadedHolder(t, 0.1), routerOptions{}), http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz reports failing checks", func(t *testing.T) {
		router := newRouter(t, loadedHolder(t, 0.1), routerOptions{checks: map[string]rest.ReadinessCheck{
			"database": func(context.Context) error { return errors.New("connection refused") },
		}})
		rec := do(router, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestPredict(t *testing.T) {
	t.Run("scores a transaction", func(t *testing.T) {
		router := newRouter(t, loadedHolder(t, 0.7), routerOptions{})
		rec := do(router, http.MethodPost, "/predict",
			`{"transaction_id":"t-1","amount":"350.25","transaction_type":"online","balance":10,"age":40,"merchant_rating":4.5,"is_international":true}`, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp dto.ScoreResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 1, resp.IsFraud)
		assert.Equal(t, 0.7, resp.FraudProbability)
		assert.Equal(t, "t-1", resp.TransactionID)
	})

	tests := []struct {
		name   string
		holder func(t *testing.T) *artifact.Holder
		body   string
		want   int
	}{
		{name: "empty body", holder: func(t *testing.T) *artifact.Holder { return loadedHolder(t, 0.1) }, body: "", want: http.StatusBadRequest},
		{name: "malformed json", holder: func(t *testing.T) *artifact.Holder { return loadedHolder(t, 0.1) }, body: `{"amount":`, want: http.StatusBadRequest},
		{name: "invalid field", holder: func(t *testing.T) *artifact.Holder { return loadedHolder(t, 0.1) }, body: `{"amount":1,"hour":30}`, want: http.StatusBadRequest},
		{name: "no model", holder: func(*testing.T) *artifact.Holder { return artifact.NewHolder() }, body: `{"amount":1}`, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newRouter(t, tt.holder(t), routerOptions{}), http.MethodPost, "/predict", tt.body, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTrainAndHistory(t *testing.T) {
	router := newRouter(t, artifact.NewHolder(), routerOptions{})

	rec := do(router, http.MethodPost, "/train", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "dataset not found")

	rec = do(router, http.MethodGet, "/training-runs?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs dto.ListTrainingRunsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "FAILED", runs.Runs[0].Status)

	rec = do(router, http.MethodGet, "/training-runs?offset=x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "s3cret", Expiration: time.Hour})
	require.NoError(t, err)
	router := newRouter(t, loadedHolder(t, 0.1), routerOptions{jwt: jwtService})

	token := func(roles ...string) string {
		tok, err := jwtService.GenerateToken("tester", roles)
		require.NoError(t, err)
		return tok
	}

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/predict", `{"amount":1}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/predict", `{"amount":1}`, "garbage").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/predict", `{"amount":1}`, token(auth.RoleScorer)).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/train", "", token(auth.RoleScorer)).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(router, http.MethodPost, "/train", "", token(auth.RoleModelAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/training-runs", "", token(auth.RoleScorer)).Code)
}
