package dto

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// ScoreRequest is the input DTO for the ScoreTransaction use case. Only
// amount is required; every other field is filled with 0 when the model
// expects it and it is absent.
type ScoreRequest struct {
	Timestamp       *time.Time         `json:"timestamp,omitempty"`
	LastLogin       *time.Time         `json:"last_login,omitempty"`
	Balance         *float64           `json:"balance,omitempty"`
	Age             *float64           `json:"age,omitempty"`
	MerchantRating  *float64           `json:"merchant_rating,omitempty"`
	IsInternational *bool              `json:"is_international,omitempty"`
	Hour            *int               `json:"hour,omitempty"`
	DayOfWeek       *int               `json:"dayofweek,omitempty"`
	IsWeekend       *int               `json:"is_weekend,omitempty"`
	DaysSinceLogin  *int               `json:"days_since_login,omitempty"`
	Extra           map[string]float64 `json:"extra,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	TransactionID   string             `json:"transaction_id,omitempty"`
	TransactionType string             `json:"transaction_type,omitempty"`
	Category        string             `json:"category,omitempty"`
}

// ToRecord converts the request into a domain record. When category is
// empty the transaction type stands in for it.
func (r ScoreRequest) ToRecord() (model.TransactionRecord, error) {
	rec := model.TransactionRecord{
		Identifiers: make(map[string]string),
		Numeric:     make(map[string]float64, 5+len(r.Extra)),
		Timestamp:   r.Timestamp,
		LastLogin:   r.LastLogin,
		Derived: model.DerivedFeatures{
			Hour:           r.Hour,
			DayOfWeek:      r.DayOfWeek,
			IsWeekend:      r.IsWeekend,
			DaysSinceLogin: r.DaysSinceLogin,
		},
	}
	if r.TransactionID != "" {
		rec.Identifiers["transactionid"] = r.TransactionID
	}

	for name, v := range r.Extra {
		key := model.NormalizeColumn(name)
		if key == "" {
			return model.TransactionRecord{}, fmt.Errorf("extra field name is blank")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.TransactionRecord{}, fmt.Errorf("extra field %q is not finite", name)
		}
		rec.Numeric[key] = v
	}

	rec.Numeric["amount"] = r.Amount.InexactFloat64()
	if r.Balance != nil {
		rec.Numeric["balance"] = *r.Balance
	}
	if r.Age != nil {
		if *r.Age < 0 {
			return model.TransactionRecord{}, fmt.Errorf("age must not be negative")
		}
		rec.Numeric["age"] = *r.Age
	}
	if r.MerchantRating != nil {
		rec.Numeric["merchant_rating"] = *r.MerchantRating
	}
	if r.IsInternational != nil {
		rec.Numeric["is_international"] = 0
		if *r.IsInternational {
			rec.Numeric["is_international"] = 1
		}
	}

	if err := validateDerived(r); err != nil {
		return model.TransactionRecord{}, err
	}

	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = strings.TrimSpace(r.TransactionType)
	}
	if category != "" {
		rec.Category = &category
	}

	return rec, nil
}

func validateDerived(r ScoreRequest) error {
	if r.Hour != nil && (*r.Hour < 0 || *r.Hour > 23) {
		return fmt.Errorf("hour must be between 0 and 23")
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return fmt.Errorf("dayofweek must be between 0 and 6")
	}
	if r.IsWeekend != nil && *r.IsWeekend != 0 && *r.IsWeekend != 1 {
		return fmt.Errorf("is_weekend must be 0 or 1")
	}
	return nil
}

// ScoreResponse is the output DTO of a scoring request.
type ScoreResponse struct {
	ModelVersion     string  `json:"model_version"`
	TransactionID    string  `json:"transaction_id,omitempty"`
	FraudProbability float64 `json:"fraud_probability"`
	Threshold        float64 `json:"threshold"`
	IsFraud          int     `json:"is_fraud"`
	UnseenCategory   bool    `json:"unseen_category,omitempty"`
}

// FromScoringResult maps a domain result to the response DTO.
func FromScoringResult(transactionID string, res model.ScoringResult) ScoreResponse {
	return ScoreResponse{
		IsFraud:          res.IsFraud,
		FraudProbability: res.FraudProbability,
		ModelVersion:     res.ModelVersion,
		Threshold:        res.Threshold,
		TransactionID:    transactionID,
		UnseenCategory:   res.UnseenCategory,
	}
}
