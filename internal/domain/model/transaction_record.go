package model

import (
	"slices"
	"strings"
	"time"
)

// Column and feature names as they appear after header normalization.
const (
	ColumnTimestamp = "timestamp"
	ColumnLastLogin = "lastlogin"
	ColumnCategory  = "category"
	ColumnLabel     = "isfraud"

	legacyLabelColumn = "fraudindicator"

	FeatureHour           = "hour"
	FeatureDayOfWeek      = "dayofweek"
	FeatureIsWeekend      = "is_weekend"
	FeatureDaysSinceLogin = "days_since_login"
)

// IdentifierColumns carry identity or free text and are never modelled.
var IdentifierColumns = []string{
	"transactionid", "customerid", "merchantid",
	"name", "address", "merchantname", "location",
}

// IsIdentifierColumn reports whether name is in IdentifierColumns.
func IsIdentifierColumn(name string) bool {
	return slices.Contains(IdentifierColumns, name)
}

// NormalizeColumn trims and lower-cases a header and maps the legacy label
// name onto ColumnLabel.
func NormalizeColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == legacyLabelColumn {
		return ColumnLabel
	}
	return n
}

// DerivedFeatures are the calendar features. Callers that already computed
// them set the pointers and they are used unchanged.
type DerivedFeatures struct {
	Hour           *int
	DayOfWeek      *int
	IsWeekend      *int
	DaysSinceLogin *int
}

// TransactionRecord is one denormalized transaction row. A nil pointer means
// the field was absent from the source.
type TransactionRecord struct {
	Identifiers map[string]string
	Timestamp   *time.Time
	LastLogin   *time.Time
	Category    *string
	Numeric     map[string]float64
	Label       *int
	Derived     DerivedFeatures
}

// TransactionID returns the transaction identifier if one was supplied.
func (r TransactionRecord) TransactionID() string {
	return r.Identifiers["transactionid"]
}

// RawDataset is a loaded training file. Columns is the normalized header in
// file order and is the authority for column-level presence checks.
type RawDataset struct {
	Source  string
	Columns []string
	Records []TransactionRecord
}

// HasColumn reports whether the normalized header contains name.
func (d RawDataset) HasColumn(name string) bool {
	return slices.Contains(d.Columns, name)
}
