package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"depth-studio-backend/internal/logger"
	"depth-studio-backend/utils"
)

const defaultMaxSide = 768

// SDAPIOptions configures a Stable Diffusion WebUI compatible img2img backend.
type SDAPIOptions struct {
	BaseURL    string
	Checkpoint string // depth checkpoint, e.g. 512-depth-ema
	Steps      int
	CFGScale   float64
	Sampler    string
	RPM        int
	Timeout    time.Duration
	MaxSide    int
	HTTPClient *http.Client

	// OnStateChange is called after the circuit breaker changes state.
	OnStateChange func(name, from, to string)
}

// SDAPIClient calls POST /sdapi/v1/img2img on a WebUI instance serving a depth model.
type SDAPIClient struct {
	opts        SDAPIOptions
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type img2imgRequest struct {
	InitImages        []string          `json:"init_images"`
	Prompt            string            `json:"prompt"`
	NegativePrompt    string            `json:"negative_prompt,omitempty"`
	DenoisingStrength float64           `json:"denoising_strength"`
	Steps             int               `json:"steps,omitempty"`
	CFGScale          float64           `json:"cfg_scale,omitempty"`
	SamplerName       string            `json:"sampler_name,omitempty"`
	Width             int               `json:"width"`
	Height            int               `json:"height"`
	BatchSize         int               `json:"batch_size"`
	NIter             int               `json:"n_iter"`
	OverrideSettings  map[string]string `json:"override_settings,omitempty"`
}

type img2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

func NewSDAPIClient(opts SDAPIOptions) *SDAPIClient {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.MaxSide <= 0 {
		opts.MaxSide = defaultMaxSide
	}
	if opts.RPM <= 0 {
		opts.RPM = 60
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the context; the client timeout is a backstop.
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout + 10*time.Second}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SDAPI",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if opts.OnStateChange != nil {
				opts.OnStateChange(name, from.String(), to.String())
			}
		},
	})

	burst := opts.RPM / 10
	if burst < 1 {
		burst = 1
	}

	return &SDAPIClient{
		opts:        opts,
		httpClient:  httpClient,
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), burst),
	}
}

// Generate runs one img2img pass and returns the first output image.
func (c *SDAPIClient) Generate(ctx context.Context, req GenerateRequest) (image.Image, error) {
	tracer := otel.Tracer("sdapi-client")
	ctx, span := tracer.Start(ctx, "sdapi.img2img")
	defer span.End()

	if req.Image == nil {
		return nil, fmt.Errorf("source image is required")
	}

	bounds := req.Image.Bounds()
	width, height := targetSize(bounds.Dx(), bounds.Dy(), c.opts.MaxSide)
	span.SetAttributes(
		attribute.String("sdapi.checkpoint", c.opts.Checkpoint),
		attribute.Float64("sdapi.strength", req.Strength),
		attribute.Int("sdapi.width", width),
		attribute.Int("sdapi.height", height),
		attribute.Int("sdapi.prompt_length", utf8.RuneCountInString(req.Prompt)),
	)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("sdapi.rate_limited", true))
		span.SetStatus(codes.Error, "rate limiter")
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.img2img(ctx, req, width, height)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("sdapi.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "img2img failed")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("sdapi.success", true))
	return result.(image.Image), nil
}

func (c *SDAPIClient) img2img(ctx context.Context, req GenerateRequest, width, height int) (image.Image, error) {
	source, err := utils.EncodePNG(req.Image)
	if err != nil {
		return nil, err
	}

	body := img2imgRequest{
		InitImages:        []string{base64.StdEncoding.EncodeToString(source)},
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		DenoisingStrength: req.Strength,
		Steps:             c.opts.Steps,
		CFGScale:          c.opts.CFGScale,
		SamplerName:       c.opts.Sampler,
		Width:             width,
		Height:            height,
		BatchSize:         1,
		NIter:             1,
	}
	if c.opts.Checkpoint != "" {
		body.OverrideSettings = map[string]string{"sd_model_checkpoint": c.opts.Checkpoint}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal img2img request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/sdapi/v1/img2img", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("img2img request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("img2img error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var out img2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode img2img response: %w", err)
	}
	if len(out.Images) == 0 || out.Images[0] == "" {
		return nil, ErrEmptyResult
	}

	raw, err := base64.StdEncoding.DecodeString(stripDataURL(out.Images[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode output base64: %w", err)
	}

	img, _, err := utils.DecodeImage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode output image: %w", err)
	}
	return img, nil
}

// targetSize keeps the aspect ratio, caps the longer side at maxSide and rounds
// both sides down to a multiple of 8 as the diffusion backend requires.
func targetSize(w, h, maxSide int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxSide, maxSide
	}
	if w > maxSide || h > maxSide {
		if w >= h {
			h = h * maxSide / w
			w = maxSide
		} else {
			w = w * maxSide / h
			h = maxSide
		}
	}
	w = max(64, w/8*8)
	h = max(64, h/8*8)
	return w, h
}

// stripDataURL removes a "data:image/png;base64," prefix if present
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
