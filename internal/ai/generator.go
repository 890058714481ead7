package ai

import (
	"context"
	"errors"
	"fmt"
	"image"

	"depth-studio-backend/internal/config"
	"depth-studio-backend/internal/telemetry"
)

// ErrEmptyResult is returned when the backend answers without an image.
var ErrEmptyResult = errors.New("generator returned no image")

// GenerateRequest carries one depth-conditioned image-to-image call.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	Image          image.Image
	// Strength in (0,1]: how far the output may drift from the source image.
	Strength float64
}

// Generator is the external image-generation capability.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (image.Image, error)
}

// NewGenerator builds the configured backend wrapped in the concurrency guard.
// metrics may be nil.
func NewGenerator(cfg *config.Config, metrics *telemetry.Metrics) (Generator, error) {
	var backend Generator
	switch cfg.GeneratorProvider {
	case "sdapi":
		backend = NewSDAPIClient(SDAPIOptions{
			BaseURL:    cfg.SDAPIURL,
			Checkpoint: cfg.SDAPICheckpoint,
			Steps:      cfg.SDAPISteps,
			CFGScale:   cfg.SDAPICFGScale,
			Sampler:    cfg.SDAPISampler,
			RPM:        cfg.GeneratorRPM,
			Timeout:    cfg.GenerationTimeout,
			OnStateChange: func(name, _, to string) {
				metrics.RecordCircuitBreakerState(name, to)
			},
		})
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.GeneratorProvider)
	}

	return NewGuarded(backend, cfg.GeneratorMaxConcurrent, cfg.GenerationTimeout), nil
}
