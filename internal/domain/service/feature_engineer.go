package service

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// FeatureEngineer turns raw transaction records into numeric features with
// a fixed, named schema.
type FeatureEngineer struct {
	reference model.LoginReference
	now       func() time.Time
	logger    *slog.Logger
}

// NewFeatureEngineer creates a FeatureEngineer that measures
// days_since_login from reference.
func NewFeatureEngineer(reference model.LoginReference, logger *slog.Logger) *FeatureEngineer {
	if reference == "" {
		reference = model.LoginReferenceTransaction
	}
	return &FeatureEngineer{
		reference: reference,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the wall clock used for LoginReferenceNow.
func (f *FeatureEngineer) WithClock(now func() time.Time) *FeatureEngineer {
	clone := *f
	clone.now = now
	return &clone
}

// Reference returns the configured login reference.
func (f *FeatureEngineer) Reference() model.LoginReference {
	return f.reference
}

// FitTransform engineers a full training dataset and fits the category
// encoder on it. Feature order is: retained columns in file order (with the
// category encoded in place), then hour, dayofweek, is_weekend, then
// days_since_login.
func (f *FeatureEngineer) FitTransform(raw model.RawDataset) (model.Dataset, *model.CategoryEncoder, error) {
	if !raw.HasColumn(model.ColumnCategory) {
		return model.Dataset{}, nil, &model.SchemaError{Column: model.ColumnCategory, Reason: "required for encoding"}
	}
	if !raw.HasColumn(model.ColumnLabel) {
		return model.Dataset{}, nil, &model.SchemaError{Column: model.ColumnLabel, Reason: "dataset must contain the label column"}
	}
	if len(raw.Records) == 0 {
		return model.Dataset{}, nil, &model.DataError{Path: raw.Source, Reason: "dataset has no rows"}
	}

	columns, dropped := f.retainedColumns(raw)
	if len(dropped) > 0 {
		f.logger.Debug("dropping non-numeric columns", slog.Any("columns", dropped))
	}

	names := slices.Clone(columns)
	hasTimestamp := raw.HasColumn(model.ColumnTimestamp)
	hasLogin := raw.HasColumn(model.ColumnLastLogin)
	if hasTimestamp {
		names = append(names, model.FeatureHour, model.FeatureDayOfWeek, model.FeatureIsWeekend)
	}
	if hasLogin {
		names = append(names, model.FeatureDaysSinceLogin)
	}
	schema, err := model.NewFeatureSchema(names)
	if err != nil {
		return model.Dataset{}, nil, &model.SchemaError{Column: "*", Reason: err.Error()}
	}

	categories := make([]string, len(raw.Records))
	for i, r := range raw.Records {
		if r.Category != nil {
			categories[i] = *r.Category
		}
	}
	encoder := model.FitCategoryEncoder(categories)

	ds := model.Dataset{
		Features: schema,
		X:        make([][]float64, len(raw.Records)),
		Y:        make([]int, len(raw.Records)),
	}
	now := f.now()
	for i, r := range raw.Records {
		if r.Label == nil {
			return model.Dataset{}, nil, &model.DataError{Path: raw.Source, Reason: fmt.Sprintf("row %d has no label", i+1)}
		}
		if *r.Label != 0 && *r.Label != 1 {
			return model.Dataset{}, nil, &model.DataError{Path: raw.Source, Reason: fmt.Sprintf("row %d has label %d, want 0 or 1", i+1, *r.Label)}
		}
		ds.Y[i] = *r.Label

		code, _ := encoder.Encode(categories[i])
		derived := f.derive(r, now)
		row := make([]float64, schema.Len())
		for j, name := range names {
			switch {
			case name == model.ColumnCategory:
				row[j] = float64(code)
			case j < len(columns):
				row[j] = r.Numeric[name]
			default:
				row[j] = derived[name]
			}
		}
		ds.X[i] = row
	}

	return ds, encoder, nil
}

// retainedColumns lists the dataset columns that become features directly.
// A column is dropped when it is an identifier, a raw time column, the
// label, or holds text in any record.
func (f *FeatureEngineer) retainedColumns(raw model.RawDataset) (kept, dropped []string) {
	for _, c := range raw.Columns {
		switch {
		case model.IsIdentifierColumn(c),
			c == model.ColumnTimestamp,
			c == model.ColumnLastLogin,
			c == model.ColumnLabel:
			continue
		case c == model.ColumnCategory:
			kept = append(kept, c)
			continue
		}
		if hasText(raw.Records, c) {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

func hasText(records []model.TransactionRecord, column string) bool {
	for _, r := range records {
		if _, ok := r.Identifiers[column]; ok {
			return true
		}
	}
	return false
}

// Derive builds the scoring candidate for one record: its numeric fields
// plus whichever calendar features can be supplied or computed. The
// category is left to the caller because encoding depends on the artifact.
func (f *FeatureEngineer) Derive(r model.TransactionRecord, reference model.LoginReference) model.FeatureVector {
	fe := f
	if reference != "" && reference != f.reference {
		clone := *f
		clone.reference = reference
		fe = &clone
	}

	v := make(model.FeatureVector, len(r.Numeric)+4)
	for name, val := range r.Numeric {
		v[name] = val
	}
	for name, val := range fe.derive(r, fe.now()) {
		v[name] = val
	}
	return v
}

// derive computes hour, dayofweek, is_weekend and days_since_login.
// Caller-supplied values pass through unchanged; values that cannot be
// computed are omitted.
func (f *FeatureEngineer) derive(r model.TransactionRecord, now time.Time) map[string]float64 {
	out := make(map[string]float64, 4)

	if r.Timestamp != nil {
		ts := *r.Timestamp
		dow := (int(ts.Weekday()) + 6) % 7
		out[model.FeatureHour] = float64(ts.Hour())
		out[model.FeatureDayOfWeek] = float64(dow)
		out[model.FeatureIsWeekend] = boolToFloat(dow >= 5)
	}
	if r.Derived.Hour != nil {
		out[model.FeatureHour] = float64(*r.Derived.Hour)
	}
	if r.Derived.DayOfWeek != nil {
		out[model.FeatureDayOfWeek] = float64(*r.Derived.DayOfWeek)
		if r.Derived.IsWeekend == nil {
			out[model.FeatureIsWeekend] = boolToFloat(*r.Derived.DayOfWeek >= 5)
		}
	}
	if r.Derived.IsWeekend != nil {
		out[model.FeatureIsWeekend] = float64(*r.Derived.IsWeekend)
	}

	if r.LastLogin != nil {
		ref := now
		if f.reference == model.LoginReferenceTransaction && r.Timestamp != nil {
			ref = *r.Timestamp
		}
		out[model.FeatureDaysSinceLogin] = DaysBetween(*r.LastLogin, ref)
	}
	if r.Derived.DaysSinceLogin != nil {
		out[model.FeatureDaysSinceLogin] = float64(*r.Derived.DaysSinceLogin)
	}

	return out
}

// DaysBetween returns the whole days from earlier to later, floored.
func DaysBetween(earlier, later time.Time) float64 {
	return math.Floor(later.Sub(earlier).Hours() / 24)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
