package cache

import (
	"fmt"
	"math"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// ScoreCache is a bounded LRU of scoring results keyed by model version and
// the exact bits of the aligned feature vector. A new model version never
// hits entries written for an older one. It implements port.ScoreCache.
type ScoreCache struct {
	entries *lru.Cache[string, model.ScoringResult]
}

// NewScoreCache creates a cache holding at most size results.
func NewScoreCache(size int) (*ScoreCache, error) {
	entries, err := lru.New[string, model.ScoringResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create score cache: %w", err)
	}
	return &ScoreCache{entries: entries}, nil
}

func (c *ScoreCache) Get(version string, features []float64) (model.ScoringResult, bool) {
	return c.entries.Get(key(version, features))
}

func (c *ScoreCache) Put(version string, features []float64, result model.ScoringResult) {
	c.entries.Add(key(version, features), result)
}

// Len returns the number of cached results.
func (c *ScoreCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *ScoreCache) Purge() {
	c.entries.Purge()
}

func key(version string, features []float64) string {
	buf := make([]byte, 0, len(version)+1+len(features)*17)
	buf = append(buf, version...)
	buf = append(buf, '|')
	for _, f := range features {
		buf = strconv.AppendUint(buf, math.Float64bits(f), 16)
		buf = append(buf, ',')
	}
	return string(buf)
}
