package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/pkg/auth"
)

// ScoringHandler serves the scoring and training endpoints.
type ScoringHandler struct {
	scoreTransaction *usecase.ScoreTransaction
	trainModel       *usecase.TrainModel
	listRuns         *usecase.ListTrainingRuns
	authRequired     bool
	logger           *slog.Logger
}

// NewScoringHandler creates a new ScoringHandler. When authRequired is
// false no role checks are made.
func NewScoringHandler(
	scoreTransaction *usecase.ScoreTransaction,
	trainModel *usecase.TrainModel,
	listRuns *usecase.ListTrainingRuns,
	authRequired bool,
	logger *slog.Logger,
) *ScoringHandler {
	return &ScoringHandler{
		scoreTransaction: scoreTransaction,
		trainModel:       trainModel,
		listRuns:         listRuns,
		authRequired:     authRequired,
		logger:           logger,
	}
}

// RegisterRoutes registers the API endpoints on mux.
func (h *ScoringHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", requireRole(h.authRequired, h.Predict, auth.RoleScorer, auth.RoleModelAdmin))
	mux.HandleFunc("POST /train", requireRole(h.authRequired, h.Train, auth.RoleModelAdmin))
	mux.HandleFunc("GET /training-runs", requireRole(h.authRequired, h.ListTrainingRuns, auth.RoleAnalyst, auth.RoleModelAdmin))
}

// Predict handles POST /predict.
func (h *ScoringHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req dto.ScoreRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.scoreTransaction.Execute(r.Context(), req)
	if err != nil {
		h.writeUsecaseError(r.Context(), w, "score transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Train handles POST /train. It blocks until the run finishes.
func (h *ScoringHandler) Train(w http.ResponseWriter, r *http.Request) {
	resp, err := h.trainModel.Execute(r.Context())
	if err != nil {
		h.writeUsecaseError(r.Context(), w, "train model", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTrainingRuns handles GET /training-runs?limit=&offset=.
func (h *ScoringHandler) ListTrainingRuns(w http.ResponseWriter, r *http.Request) {
	var req dto.ListTrainingRunsRequest
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &req.Limit, "offset": &req.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = v
	}

	resp, err := h.listRuns.Execute(r.Context(), req)
	if err != nil {
		h.writeUsecaseError(r.Context(), w, "list training runs", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeUsecaseError maps use case errors to HTTP statuses. Unexpected
// errors are logged and reported as 500.
func (h *ScoringHandler) writeUsecaseError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrTrainingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrArtifactMissing):
		writeError(w, http.StatusServiceUnavailable, "no model loaded")
	case errors.Is(err, model.ErrData), errors.Is(err, model.ErrSchema):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(ctx, "failed to "+op, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
