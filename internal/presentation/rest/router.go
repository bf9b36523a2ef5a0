package rest

import (
	"log/slog"
	"net/http"

	"github.com/bibbank/fraudscoring/pkg/auth"
)

// RouterConfig collects the HTTP surface. Metrics and JWT are optional.
type RouterConfig struct {
	Scoring *ScoringHandler
	Health  *HealthHandler
	Metrics http.Handler
	JWT     *auth.JWTService
	Logger  *slog.Logger
}

// NewRouter builds the HTTP handler. Health and metrics endpoints bypass
// authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	cfg.Health.RegisterRoutes(mux)
	cfg.Scoring.RegisterRoutes(mux)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	if cfg.JWT != nil {
		handler = auth.HTTPMiddleware(cfg.JWT, []string{"/healthz", "/readyz", "/metrics"})(handler)
	}
	return LoggingMiddleware(cfg.Logger)(handler)
}
