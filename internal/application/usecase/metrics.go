package usecase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bibbank/fraudscoring/internal/application/usecase"

var tracer = otel.Tracer(instrumentationName)

// Metrics holds the scoring and training instruments. The Prometheus
// exporter adds the _total and _seconds suffixes. A nil *Metrics records
// nothing.
type Metrics struct {
	scoringRequests  metric.Int64Counter
	scoringFlagged   metric.Int64Counter
	scoringLatency   metric.Float64Histogram
	trainingRuns     metric.Int64Counter
	trainingDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.scoringRequests, err = meter.Int64Counter("fraud_scoring_requests",
		metric.WithDescription("Transactions scored, by outcome and cache use.")); err != nil {
		return nil, fmt.Errorf("failed to create scoring request counter: %w", err)
	}
	if m.scoringFlagged, err = meter.Int64Counter("fraud_scoring_flagged",
		metric.WithDescription("Transactions scored as fraud.")); err != nil {
		return nil, fmt.Errorf("failed to create flagged counter: %w", err)
	}
	if m.scoringLatency, err = meter.Float64Histogram("fraud_scoring_latency",
		metric.WithUnit("s"),
		metric.WithDescription("Scoring latency.")); err != nil {
		return nil, fmt.Errorf("failed to create scoring latency histogram: %w", err)
	}
	if m.trainingRuns, err = meter.Int64Counter("fraud_training_runs",
		metric.WithDescription("Training runs, by outcome.")); err != nil {
		return nil, fmt.Errorf("failed to create training run counter: %w", err)
	}
	if m.trainingDuration, err = meter.Float64Histogram("fraud_training_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Training run duration.")); err != nil {
		return nil, fmt.Errorf("failed to create training duration histogram: %w", err)
	}

	return &m, nil
}

func (m *Metrics) recordScore(ctx context.Context, outcome string, cached, flagged bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("cached", cached),
	)
	m.scoringRequests.Add(ctx, 1, attrs)
	m.scoringLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	if flagged {
		m.scoringFlagged.Add(ctx, 1)
	}
}

func (m *Metrics) recordTraining(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.trainingRuns.Add(ctx, 1, attrs)
	m.trainingDuration.Record(ctx, elapsed.Seconds(), attrs)
}
