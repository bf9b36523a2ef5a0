package testutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// SyntheticCategories is the category vocabulary of generated datasets.
var SyntheticCategories = []string{"atm", "online", "pos", "transfer"}

// SyntheticHeader is the CSV header written by WriteSyntheticCSV.
var SyntheticHeader = []string{
	"TransactionID", "CustomerID", "Amount", "Category", "Balance", "Age",
	"Merchant_Rating", "Is_International", "Timestamp", "LastLogin", "IsFraud",
}

// DatasetOptions controls SyntheticDataset.
type DatasetOptions struct {
	Rows         int
	PositiveRate float64
	Seed         uint64
	// Start is the earliest transaction time. Zero means 2024-01-01 UTC.
	Start time.Time
}

// SyntheticDataset generates a labelled transaction set in which fraud is
// learnable: positives skew towards large amounts, night hours, online and
// transfer categories, international use and stale logins. Exactly
// round(Rows*PositiveRate) rows are positive, at least one when the rate
// is above zero. The same options always give the same rows.
func SyntheticDataset(opts DatasetOptions) model.RawDataset {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xfeed))
	start := opts.Start
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	positives := int(math.Round(float64(opts.Rows) * opts.PositiveRate))
	if opts.PositiveRate > 0 && positives == 0 && opts.Rows > 0 {
		positives = 1
	}
	labels := make([]int, opts.Rows)
	for i := 0; i < positives; i++ {
		labels[i] = 1
	}
	rng.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })

	ds := model.RawDataset{Source: "synthetic"}
	for _, h := range SyntheticHeader {
		ds.Columns = append(ds.Columns, model.NormalizeColumn(h))
	}

	for i, label := range labels {
		fraud := label == 1
		day := start.Add(time.Duration(rng.IntN(90)) * 24 * time.Hour)

		var (
			amount, rating float64
			hour, since    int
			category       string
			intl           float64
		)
		if fraud {
			amount = 800 + rng.Float64()*4200
			hour = []int{0, 1, 2, 3, 4, 23}[rng.IntN(6)]
			category = []string{"online", "transfer"}[rng.IntN(2)]
			since = 20 + rng.IntN(60)
			rating = 1 + rng.Float64()*2
			if rng.Float64() < 0.7 {
				intl = 1
			}
		} else {
			amount = 5 + rng.Float64()*600
			hour = 8 + rng.IntN(14)
			category = SyntheticCategories[rng.IntN(len(SyntheticCategories))]
			since = rng.IntN(10)
			rating = 3 + rng.Float64()*2
			if rng.Float64() < 0.05 {
				intl = 1
			}
		}

		ts := day.Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(60))*time.Minute)
		login := ts.Add(-time.Duration(since)*24*time.Hour - time.Duration(rng.IntN(12))*time.Hour)
		cat := category
		y := label

		ds.Records = append(ds.Records, model.TransactionRecord{
			Identifiers: map[string]string{
				"transactionid": fmt.Sprintf("T%06d", i+1),
				"customerid":    fmt.Sprintf("C%04d", rng.IntN(500)),
			},
			Timestamp: &ts,
			LastLogin: &login,
			Category:  &cat,
			Numeric: map[string]float64{
				"amount":           math.Round(amount*100) / 100,
				"balance":          math.Round(rng.Float64()*20000*100) / 100,
				"age":              float64(18 + rng.IntN(60)),
				"merchant_rating":  math.Round(rating*10) / 10,
				"is_international": intl,
			},
			Label: &y,
		})
	}
	return ds
}

// WriteSyntheticCSV writes ds, as produced by SyntheticDataset, as CSV.
func WriteSyntheticCSV(w io.Writer, ds model.RawDataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SyntheticHeader); err != nil {
		return err
	}
	for _, r := range ds.Records {
		row := []string{
			r.Identifiers["transactionid"],
			r.Identifiers["customerid"],
			formatFloat(r.Numeric["amount"]),
			*r.Category,
			formatFloat(r.Numeric["balance"]),
			formatFloat(r.Numeric["age"]),
			formatFloat(r.Numeric["merchant_rating"]),
			formatFloat(r.Numeric["is_international"]),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.LastLogin.Format("2006-01-02 15:04:05"),
			strconv.Itoa(*r.Label),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
