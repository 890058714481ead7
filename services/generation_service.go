package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"depth-studio-backend/internal/ai"
	"depth-studio-backend/internal/config"
	"depth-studio-backend/internal/logger"
	"depth-studio-backend/internal/telemetry"
	"depth-studio-backend/utils"
)

var (
	// ErrInvalidImage wraps decoder failures for the uploaded source image.
	ErrInvalidImage = errors.New("invalid image file")
	// ErrInvalidStrength is returned when strength is not a number in (0,1].
	ErrInvalidStrength = errors.New("strength must be a number greater than 0 and at most 1")
)

// ImageError reports why the uploaded image could not be decoded. It matches
// ErrInvalidImage with errors.Is.
type ImageError struct {
	Err error
}

func (e *ImageError) Error() string {
	return "invalid image file: " + e.Err.Error()
}

func (e *ImageError) Unwrap() []error {
	return []error{ErrInvalidImage, e.Err}
}

// GenerationInput is one parsed /api/generate request.
type GenerationInput struct {
	Image    io.Reader
	Prompt   string
	Strength string
}

type GenerationService struct {
	generator       ai.Generator
	store           *ImageStore
	metrics         *telemetry.Metrics
	defaultPrompt   string
	negativePrompt  string
	defaultStrength float64
	maxPromptLength int
}

func NewGenerationService(cfg *config.Config, generator ai.Generator, store *ImageStore, metrics *telemetry.Metrics) *GenerationService {
	return &GenerationService{
		generator:       generator,
		store:           store,
		metrics:         metrics,
		defaultPrompt:   cfg.DefaultPrompt,
		negativePrompt:  cfg.NegativePrompt,
		defaultStrength: cfg.DefaultStrength,
		maxPromptLength: cfg.MaxPromptLength,
	}
}

// Generate decodes the upload, runs the generator and stores the result.
// It returns the stored filename. Client mistakes are reported as
// ErrInvalidImage or ErrInvalidStrength; everything else is a server failure.
func (s *GenerationService) Generate(ctx context.Context, in GenerationInput) (string, error) {
	strength, err := s.parseStrength(in.Strength)
	if err != nil {
		s.metrics.RecordGeneration("invalid_input", 0)
		return "", err
	}

	img, format, err := utils.DecodeImage(in.Image)
	if err != nil {
		s.metrics.RecordGeneration("invalid_input", 0)
		return "", &ImageError{Err: err}
	}

	prompt := s.normalizePrompt(in.Prompt)
	logger.Debug("Starting generation",
		"request_id", utils.RequestIDFromContext(ctx),
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"strength", strength,
	)

	start := time.Now()
	out, err := s.generator.Generate(ctx, ai.GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: s.negativePrompt,
		Image:          img,
		Strength:       strength,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.metrics.RecordGeneration("error", elapsed)
		return "", fmt.Errorf("generation failed: %w", err)
	}

	name, err := s.store.Save(ctx, out)
	if err != nil {
		s.metrics.RecordGeneration("error", elapsed)
		return "", fmt.Errorf("failed to store output: %w", err)
	}

	s.metrics.RecordGeneration("success", elapsed)
	logger.Info("Image generated",
		"request_id", utils.RequestIDFromContext(ctx),
		"file", name,
		"duration_s", elapsed,
	)
	return name, nil
}

func (s *GenerationService) normalizePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return s.defaultPrompt
	}
	if s.maxPromptLength > 0 && utf8.RuneCountInString(prompt) > s.maxPromptLength {
		prompt = string([]rune(prompt)[:s.maxPromptLength])
	}
	return prompt
}

func (s *GenerationService) parseStrength(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.defaultStrength, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v <= 0 || v > 1 {
		return 0, ErrInvalidStrength
	}
	return v, nil
}
