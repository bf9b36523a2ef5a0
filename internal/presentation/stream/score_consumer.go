// Package stream scores transactions read from a Kafka topic.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/pkg/kafka"
)

// RetryConfig controls how long a message waits for the first model.
type RetryConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the production wait settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// ScoreConsumer turns each message into a scoring request. Flagged
// transactions are published by the ScoreTransaction use case.
type ScoreConsumer struct {
	score  *usecase.ScoreTransaction
	retry  RetryConfig
	logger *slog.Logger
}

// NewScoreConsumer creates a new ScoreConsumer.
func NewScoreConsumer(score *usecase.ScoreTransaction, retry RetryConfig, logger *slog.Logger) *ScoreConsumer {
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if retry.MaxBackoff < retry.InitialBackoff {
		retry.MaxBackoff = retry.InitialBackoff
	}
	return &ScoreConsumer{score: score, retry: retry, logger: logger}
}

// Handle scores one message. Malformed messages are logged and dropped so
// they do not block the partition. While no model is loaded Handle holds
// the message and retries with backoff, so nothing behind it is committed
// before it is scored. It gives up only when ctx ends.
func (c *ScoreConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var req dto.ScoreRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable score request",
			slog.String("key", string(msg.Key)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if req.TransactionID == "" {
		req.TransactionID = string(msg.Key)
	}

	resp, err := c.scoreWhenLoaded(ctx, req)
	if errors.Is(err, usecase.ErrInvalidRequest) {
		c.logger.WarnContext(ctx, "dropping invalid score request",
			slog.String("transaction_id", req.TransactionID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to score transaction %q: %w", req.TransactionID, err)
	}

	c.logger.DebugContext(ctx, "stream transaction scored",
		slog.String("transaction_id", resp.TransactionID),
		slog.Int("is_fraud", resp.IsFraud),
	)
	return nil
}

func (c *ScoreConsumer) scoreWhenLoaded(ctx context.Context, req dto.ScoreRequest) (dto.ScoreResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.score.Execute(ctx, req)
		if !errors.Is(err, model.ErrArtifactMissing) {
			return resp, err
		}
		if attempt == 0 {
			c.logger.WarnContext(ctx, "no model loaded, holding stream message",
				slog.String("transaction_id", req.TransactionID),
			)
		}

		wait := c.backoff(attempt)
		select {
		case <-ctx.Done():
			return dto.ScoreResponse{}, fmt.Errorf("gave up waiting for a model after %d attempts: %w", attempt+1, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// backoff doubles per attempt up to MaxBackoff, plus up to 50% jitter.
func (c *ScoreConsumer) backoff(attempt int) time.Duration {
	d := c.retry.MaxBackoff
	if attempt < 30 {
		if next := c.retry.InitialBackoff << uint(attempt); next > 0 && next < d {
			d = next
		}
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}
