package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/pkg/auth"
)

// Compile-time assertion that FraudScoringHandler implements FraudScoringServiceServer.
var _ FraudScoringServiceServer = (*FraudScoringHandler)(nil)

// FraudScoringHandler implements the gRPC FraudScoringServiceServer interface.
type FraudScoringHandler struct {
	UnimplementedFraudScoringServiceServer
	scoreTransaction *usecase.ScoreTransaction
	trainModel       *usecase.TrainModel
	listRuns         *usecase.ListTrainingRuns
	authRequired     bool
	logger           *slog.Logger
}

// NewFraudScoringHandler creates a new gRPC handler. When authRequired is
// false no role checks are made.
func NewFraudScoringHandler(
	scoreTransaction *usecase.ScoreTransaction,
	trainModel *usecase.TrainModel,
	listRuns *usecase.ListTrainingRuns,
	authRequired bool,
	logger *slog.Logger,
) *FraudScoringHandler {
	return &FraudScoringHandler{
		scoreTransaction: scoreTransaction,
		trainModel:       trainModel,
		listRuns:         listRuns,
		authRequired:     authRequired,
		logger:           logger,
	}
}

// Proto-aligned request/response message types.

// ScoreRequest represents the proto ScoreRequest message. Amount is a
// decimal string; timestamps are RFC 3339.
type ScoreRequest struct {
	TransactionID   string             `json:"transaction_id"`
	Amount          string             `json:"amount"`
	Balance         *float64           `json:"balance,omitempty"`
	Age             *float64           `json:"age,omitempty"`
	MerchantRating  *float64           `json:"merchant_rating,omitempty"`
	IsInternational *bool              `json:"is_international,omitempty"`
	TransactionType string             `json:"transaction_type"`
	Category        string             `json:"category"`
	Timestamp       string             `json:"timestamp,omitempty"`
	LastLogin       string             `json:"last_login,omitempty"`
	Hour            *int32             `json:"hour,omitempty"`
	DayOfWeek       *int32             `json:"dayofweek,omitempty"`
	IsWeekend       *int32             `json:"is_weekend,omitempty"`
	DaysSinceLogin  *int32             `json:"days_since_login,omitempty"`
	Extra           map[string]float64 `json:"extra,omitempty"`
}

// ScoreResponse represents the proto ScoreResponse message.
type ScoreResponse struct {
	TransactionID    string  `json:"transaction_id,omitempty"`
	IsFraud          int32   `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`
	Threshold        float64 `json:"threshold"`
	ModelVersion     string  `json:"model_version"`
	UnseenCategory   bool    `json:"unseen_category"`
}

// TrainRequest represents the proto TrainRequest message. Training always
// reads the configured dataset.
type TrainRequest struct{}

// HyperparametersMsg represents the proto Hyperparameters message.
type HyperparametersMsg struct {
	NEstimators  int32   `json:"n_estimators"`
	MaxDepth     int32   `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
}

// TrainResponse represents the proto TrainResponse message.
type TrainResponse struct {
	RunID           string              `json:"run_id"`
	Message         string              `json:"message"`
	ModelVersion    string              `json:"model_version"`
	ModelPath       string              `json:"model_path"`
	Accuracy        float64             `json:"accuracy"`
	F1Score         float64             `json:"f1_score"`
	CVF1Score       float64             `json:"cv_f1_score"`
	Hyperparameters *HyperparametersMsg `json:"hyperparameters"`
	TrainSamples    int32               `json:"train_samples"`
	TestSamples     int32               `json:"test_samples"`
}

// ListTrainingRunsRequest represents the proto ListTrainingRunsRequest message.
type ListTrainingRunsRequest struct {
	PageSize int32 `json:"page_size"`
	Offset   int32 `json:"offset"`
}

// TrainingRunMsg represents the proto TrainingRun message.
type TrainingRunMsg struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	DatasetPath     string              `json:"dataset_path"`
	ModelVersion    string              `json:"model_version,omitempty"`
	ModelPath       string              `json:"model_path,omitempty"`
	Accuracy        float64             `json:"accuracy"`
	F1Score         float64             `json:"f1_score"`
	Hyperparameters *HyperparametersMsg `json:"hyperparameters,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	SupersededBy    string              `json:"superseded_by,omitempty"`
	StartedAt       string              `json:"started_at"`
	CompletedAt     string              `json:"completed_at,omitempty"`
}

// ListTrainingRunsResponse represents the proto ListTrainingRunsResponse message.
type ListTrainingRunsResponse struct {
	Runs       []*TrainingRunMsg `json:"runs"`
	TotalCount int32             `json:"total_count"`
}

// Score handles a scoring request.
func (h *FraudScoringHandler) Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error) {
	if err := h.requireRole(ctx, auth.RoleScorer, auth.RoleModelAdmin); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in, err := toScoreRequest(req)
	if err != nil {
		return nil, err
	}

	result, err := h.scoreTransaction.Execute(ctx, in)
	if err != nil {
		return nil, h.toStatus(ctx, "score transaction", err)
	}

	return &ScoreResponse{
		TransactionID:    result.TransactionID,
		IsFraud:          int32(result.IsFraud),
		FraudProbability: result.FraudProbability,
		Threshold:        result.Threshold,
		ModelVersion:     result.ModelVersion,
		UnseenCategory:   result.UnseenCategory,
	}, nil
}

// Train handles a training request. It blocks until the run finishes.
func (h *FraudScoringHandler) Train(ctx context.Context, req *TrainRequest) (*TrainResponse, error) {
	if err := h.requireRole(ctx, auth.RoleModelAdmin); err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "training requested", slog.String("caller", callerFromContext(ctx)))

	result, err := h.trainModel.Execute(ctx)
	if err != nil {
		return nil, h.toStatus(ctx, "train model", err)
	}

	return &TrainResponse{
		RunID:        result.RunID.String(),
		Message:      result.Message,
		ModelVersion: result.ModelVersion,
		ModelPath:    result.ModelPath,
		Accuracy:     result.Accuracy,
		F1Score:      result.F1Score,
		CVF1Score:    result.CVScore,
		Hyperparameters: &HyperparametersMsg{
			NEstimators:  int32(result.Hyperparameters.NEstimators),
			MaxDepth:     int32(result.Hyperparameters.MaxDepth),
			LearningRate: result.Hyperparameters.LearningRate,
		},
		TrainSamples: int32(result.TrainSamples),
		TestSamples:  int32(result.TestSamples),
	}, nil
}

// ListTrainingRuns handles a request for training history.
func (h *FraudScoringHandler) ListTrainingRuns(ctx context.Context, req *ListTrainingRunsRequest) (*ListTrainingRunsResponse, error) {
	if err := h.requireRole(ctx, auth.RoleAnalyst, auth.RoleModelAdmin); err != nil {
		return nil, err
	}
	if req == nil {
		req = &ListTrainingRunsRequest{}
	}

	result, err := h.listRuns.Execute(ctx, dto.ListTrainingRunsRequest{
		Limit:  int(req.PageSize),
		Offset: int(req.Offset),
	})
	if err != nil {
		return nil, h.toStatus(ctx, "list training runs", err)
	}

	resp := &ListTrainingRunsResponse{
		Runs:       make([]*TrainingRunMsg, 0, len(result.Runs)),
		TotalCount: int32(result.TotalCount),
	}
	for _, r := range result.Runs {
		msg := &TrainingRunMsg{
			ID:            r.ID.String(),
			Status:        r.Status,
			DatasetPath:   r.DatasetPath,
			ModelVersion:  r.ModelVersion,
			ModelPath:     r.ModelPath,
			Accuracy:      r.Accuracy,
			F1Score:       r.F1Score,
			FailureReason: r.FailureReason,
			SupersededBy:  r.SupersededBy,
			StartedAt:     r.StartedAt.Format(time.RFC3339),
		}
		if r.Hyperparameters.NEstimators > 0 {
			msg.Hyperparameters = &HyperparametersMsg{
				NEstimators:  int32(r.Hyperparameters.NEstimators),
				MaxDepth:     int32(r.Hyperparameters.MaxDepth),
				LearningRate: r.Hyperparameters.LearningRate,
			}
		}
		if r.CompletedAt != nil {
			msg.CompletedAt = r.CompletedAt.Format(time.RFC3339)
		}
		resp.Runs = append(resp.Runs, msg)
	}
	return resp, nil
}

func toScoreRequest(req *ScoreRequest) (dto.ScoreRequest, error) {
	if req.Amount == "" {
		return dto.ScoreRequest{}, status.Error(codes.InvalidArgument, "amount is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return dto.ScoreRequest{}, status.Errorf(codes.InvalidArgument, "invalid amount: %v", err)
	}

	in := dto.ScoreRequest{
		TransactionID:   req.TransactionID,
		Amount:          amount,
		Balance:         req.Balance,
		Age:             req.Age,
		MerchantRating:  req.MerchantRating,
		IsInternational: req.IsInternational,
		TransactionType: req.TransactionType,
		Category:        req.Category,
		Hour:            intPtr(req.Hour),
		DayOfWeek:       intPtr(req.DayOfWeek),
		IsWeekend:       intPtr(req.IsWeekend),
		DaysSinceLogin:  intPtr(req.DaysSinceLogin),
		Extra:           req.Extra,
	}
	if in.Timestamp, err = parseTime("timestamp", req.Timestamp); err != nil {
		return dto.ScoreRequest{}, err
	}
	if in.LastLogin, err = parseTime("last_login", req.LastLogin); err != nil {
		return dto.ScoreRequest{}, err
	}
	return in, nil
}

func parseTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return &t, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// requireRole checks that the caller has at least one of the given roles.
func (h *FraudScoringHandler) requireRole(ctx context.Context, roles ...string) error {
	if !h.authRequired {
		return nil
	}
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	if !claims.HasAnyRole(roles...) {
		return status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return nil
}

func callerFromContext(ctx context.Context) string {
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return "anonymous"
}

// toStatus maps use case errors to gRPC status codes. Unexpected errors
// are logged and hidden behind codes.Internal.
func (h *FraudScoringHandler) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, model.ErrArtifactMissing):
		return status.Error(codes.Unavailable, "no model loaded")
	case errors.Is(err, model.ErrData), errors.Is(err, model.ErrSchema):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	h.logger.ErrorContext(ctx, "failed to "+op, slog.String("error", err.Error()))
	return status.Error(codes.Internal, "internal error")
}
