// Package generator runs virtual try-on and image generation requests
// against the configured upstream providers, drawing credentials from
// the rotating pool.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/rotator"
)

// Request describes one generation request
type Request struct {
	Provider   models.Provider
	Prompt     string
	Image      []byte
	MimeType   string
	ClothingID string
}

// Result is the outcome of a generation. Providers return either a
// hosted URL or inline image bytes, never both.
type Result struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// providerClient runs a generation against one upstream provider using
// the selected credential.
type providerClient interface {
	Generate(ctx context.Context, cred *models.Credential, req Request) (*Result, error)
}

// Service dispatches generation requests to provider clients. Each
// request selects exactly one credential; there is no retry with a
// different key on upstream failure.
type Service struct {
	rotator   *rotator.Rotator
	logger    *logging.Logger
	metrics   *metrics.Metrics
	providers map[models.Provider]providerClient
}

// NewService creates a generation service with the standard provider set
func NewService(rot *rotator.Rotator, cfg config.ProvidersConfig, logger *logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &Service{
		rotator: rot,
		logger:  logger,
		metrics: m,
		providers: map[models.Provider]providerClient{
			models.ProviderGemini:   newGeminiClient(cfg.Gemini),
			models.ProviderQwen:     newQwenClient(cfg.Qwen),
			models.ProviderWardrobe: newWardrobeClient(cfg.Wardrobe),
		},
	}
}

// Generate selects a credential for the request's provider and runs the
// generation. An empty pool fails before any upstream traffic is sent.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	client, ok := s.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", req.Provider)
	}

	cred, err := s.rotator.Select(ctx, req.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := client.Generate(ctx, cred, req)
	duration := time.Since(start)

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordGeneration(string(req.Provider), "failure", duration.Seconds())
		}
		s.logger.ErrorWithContext(ctx, "generation failed",
			"provider", string(req.Provider),
			"credential_id", cred.ID,
			"error", err.Error(),
		)
		return nil, &errors.ErrGeneration{Provider: string(req.Provider), Err: err}
	}

	if s.metrics != nil {
		s.metrics.RecordGeneration(string(req.Provider), "success", duration.Seconds())
	}
	s.logger.InfoWithContext(ctx, "generation complete",
		"provider", string(req.Provider),
		"credential_id", cred.ID,
		"duration_ms", duration.Milliseconds(),
	)

	return result, nil
}
