package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/service"
)

func rawDataset() model.RawDataset {
	return model.RawDataset{
		Source: "test.csv",
		Columns: []string{
			"transactionid", "timestamp", "amount", "category", "merchantname",
			"device", "lastlogin", "anomalyscore", "isfraud",
		},
		Records: []model.TransactionRecord{
			{
				Identifiers: map[string]string{"transactionid": "1", "merchantname": "Acme", "device": "ios"},
				Timestamp:   mustTime("2024-03-16T22:15:00Z"), // Saturday
				LastLogin:   mustTime("2024-03-10T08:00:00Z"),
				Category:    ptr("transfer"),
				Numeric:     map[string]float64{"amount": 950.5, "anomalyscore": 0.9},
				Label:       ptr(1),
			},
			{
				Identifiers: map[string]string{"transactionid": "2", "merchantname": "Shop", "device": "web"},
				Timestamp:   mustTime("2024-03-18T09:00:00Z"), // Monday
				LastLogin:   mustTime("2024-03-18T07:00:00Z"),
				Category:    ptr("atm"),
				Numeric:     map[string]float64{"amount": 20, "anomalyscore": 0.1},
				Label:       ptr(0),
			},
		},
	}
}

func TestFeatureEngineer_FitTransform(t *testing.T) {
	fe := service.NewFeatureEngineer(model.LoginReferenceTransaction, discardLogger())

	ds, enc, err := fe.FitTransform(rawDataset())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"amount", "category", "anomalyscore",
		"hour", "dayofweek", "is_weekend", "days_since_login",
	}, ds.Features.Names())
	assert.Equal(t, []string{"atm", "transfer"}, enc.Classes())

	assert.Equal(t, []float64{950.5, 1, 0.9, 22, 5, 1, 6}, ds.X[0])
	assert.Equal(t, []float64{20, 0, 0.1, 9, 0, 0, 0}, ds.X[1])
	assert.Equal(t, []int{1, 0}, ds.Y)
}

func TestFeatureEngineer_SchemaErrors(t *testing.T) {
	fe := service.NewFeatureEngineer(model.LoginReferenceTransaction, discardLogger())

	t.Run("missing category", func(t *testing.T) {
		raw := rawDataset()
		raw.Columns = []string{"amount", "isfraud"}
		_, _, err := fe.FitTransform(raw)

		var schemaErr *model.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, model.ColumnCategory, schemaErr.Column)
	})

	t.Run("missing label", func(t *testing.T) {
		raw := rawDataset()
		raw.Columns = []string{"amount", "category"}
		_, _, err := fe.FitTransform(raw)

		var schemaErr *model.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, model.ColumnLabel, schemaErr.Column)
	})

	t.Run("row without label", func(t *testing.T) {
		raw := rawDataset()
		raw.Records[1].Label = nil
		_, _, err := fe.FitTransform(raw)
		assert.ErrorIs(t, err, model.ErrData)
	})
}

func TestFeatureEngineer_OptionalTimeColumns(t *testing.T) {
	fe := service.NewFeatureEngineer(model.LoginReferenceTransaction, discardLogger())
	raw := model.RawDataset{
		Columns: []string{"amount", "category", "isfraud"},
		Records: []model.TransactionRecord{
			{Category: ptr("pos"), Numeric: map[string]float64{"amount": 1}, Label: ptr(0)},
		},
	}

	ds, _, err := fe.FitTransform(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "category"}, ds.Features.Names())
}

func TestFeatureEngineer_LoginReferenceNow(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	fe := service.NewFeatureEngineer(model.LoginReferenceNow, discardLogger()).WithClock(func() time.Time { return now })

	v := fe.Derive(model.TransactionRecord{
		Timestamp: mustTime("2024-03-18T09:00:00Z"),
		LastLogin: mustTime("2024-03-30T13:00:00Z"),
	}, "")

	assert.Equal(t, 1.0, v[model.FeatureDaysSinceLogin])
	assert.Equal(t, model.LoginReferenceNow, fe.Reference())
}

func TestFeatureEngineer_DerivePassThrough(t *testing.T) {
	fe := service.NewFeatureEngineer(model.LoginReferenceTransaction, discardLogger())

	v := fe.Derive(model.TransactionRecord{
		Timestamp: mustTime("2024-03-18T09:00:00Z"),
		Numeric:   map[string]float64{"amount": 999999.99},
		Derived: model.DerivedFeatures{
			Hour:           ptr(13),
			DayOfWeek:      ptr(6),
			DaysSinceLogin: ptr(40),
		},
	}, model.LoginReferenceTransaction)

	assert.Equal(t, model.FeatureVector{
		"amount":           999999.99,
		"hour":             13,
		"dayofweek":        6,
		"is_weekend":       1,
		"days_since_login": 40,
	}, v)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.0, service.DaysBetween(a, a.Add(23*time.Hour)))
	assert.Equal(t, 1.0, service.DaysBetween(a, a.Add(24*time.Hour)))
	assert.Equal(t, -1.0, service.DaysBetween(a, a.Add(-time.Hour)))
}
