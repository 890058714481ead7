package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depth-studio-backend/internal/ai"
	"depth-studio-backend/internal/config"
	"depth-studio-backend/middleware"
	"depth-studio-backend/models"
	"depth-studio-backend/services"
	"depth-studio-backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockGenerator struct {
	err   error
	calls []ai.GenerateRequest
}

func (m *mockGenerator) Generate(_ context.Context, req ai.GenerateRequest) (image.Image, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	b := req.Image.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetRGBA(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	return out, nil
}

type testServer struct {
	router *gin.Engine
	store  *services.ImageStore
	gen    *mockGenerator
}

func newTestServer(t *testing.T, cfg *config.Config, gen *mockGenerator) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.DefaultPrompt = "a beautiful interior design"
	cfg.DefaultStrength = 0.7
	cfg.MaxPromptLength = 1000

	store, err := services.NewImageStore(t.TempDir())
	require.NoError(t, err)
	svc := services.NewGenerationService(cfg, gen, store, nil)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.RecoveryMiddleware())
	SetupGenerateRoutes(router, cfg, svc, store)
	return &testServer{router: router, store: store, gen: gen}
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 12))
	img.Set(3, 3, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		part, err := w.CreateFormFile("image", "room.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/generate", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func outputFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestHandleGenerate_MissingImage(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, nil, map[string]string{"prompt": "loft"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image file provided", decodeError(t, rec))
	assert.Empty(t, s.gen.calls)
}

func TestHandleGenerate_NotMultipart(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(`{"prompt":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image file provided", decodeError(t, rec))
}

func TestHandleGenerate_MalformedImage(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, []byte("this is not a png"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "Invalid image file: ")
	assert.Empty(t, s.gen.calls)
	assert.Empty(t, outputFiles(t, s.store.Dir()))
}

func TestHandleGenerate_InvalidStrength(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, pngUpload(t), map[string]string{"strength": "2"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, services.ErrInvalidStrength.Error(), decodeError(t, rec))
	assert.Empty(t, s.gen.calls)
}

func TestHandleGenerate_Success(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, pngUpload(t), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	u, err := url.Parse(resp.ImageURL)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "example.com", u.Host)
	assert.Equal(t, "/static/", path.Dir(u.Path)+"/")
	assert.Regexp(t, `^output_\d+_[0-9a-f-]{36}\.png$`, path.Base(u.Path))
	assert.FileExists(t, s.store.Path(path.Base(u.Path)))

	require.Len(t, s.gen.calls, 1)
	assert.Equal(t, "a beautiful interior design", s.gen.calls[0].Prompt)
	assert.Equal(t, 0.7, s.gen.calls[0].Strength)
}

func TestHandleGenerate_PromptAndStrengthForwarded(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, pngUpload(t), map[string]string{
		"prompt":   "scandinavian living room",
		"strength": "0.45",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.gen.calls, 1)
	assert.Equal(t, "scandinavian living room", s.gen.calls[0].Prompt)
	assert.Equal(t, 0.45, s.gen.calls[0].Strength)
}

func TestHandleGenerate_GeneratorFailure(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{err: errors.New("CUDA out of memory at 0xdeadbeef")})

	rec := s.do(multipartRequest(t, pngUpload(t), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, utils.GenericGenerationError, decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "CUDA")
	assert.Empty(t, outputFiles(t, s.store.Dir()))
}

func TestHandleGenerate_URLBase(t *testing.T) {
	t.Run("public base url", func(t *testing.T) {
		s := newTestServer(t, &config.Config{PublicBaseURL: "https://cdn.example.org"}, &mockGenerator{})
		rec := s.do(multipartRequest(t, pngUpload(t), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.GenerateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Regexp(t, `^https://cdn\.example\.org/static/output_`, resp.ImageURL)
	})

	t.Run("forwarded headers", func(t *testing.T) {
		s := newTestServer(t, nil, &mockGenerator{})
		req := multipartRequest(t, pngUpload(t), nil)
		req.Header.Set("X-Forwarded-Proto", "https, http")
		req.Header.Set("X-Forwarded-Host", "studio.example.net")
		rec := s.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.GenerateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Regexp(t, `^https://studio\.example\.net/static/output_`, resp.ImageURL)
	})
}

func TestHandleServeOutput_RoundTrip(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(multipartRequest(t, pngUpload(t), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	u, err := url.Parse(resp.ImageURL)
	require.NoError(t, err)

	saved, err := os.ReadFile(s.store.Path(path.Base(u.Path)))
	require.NoError(t, err)

	rec = s.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	served, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, saved, served)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	img, err := png.Decode(bytes.NewReader(served))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestHandleServeOutput_NotFound(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/static/output_1_missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decodeError(t, rec))
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHandleServeOutput_OnlyServesOutputs(t *testing.T) {
	s := newTestServer(t, nil, &mockGenerator{})

	require.NoError(t, os.WriteFile(s.store.Path(".tmp-123.png"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(s.store.Path("notes.png"), []byte("x"), 0644))

	for _, name := range []string{".tmp-123.png", "notes.png"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/static/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
		assert.NotContains(t, rec.Body.String(), "partial")
	}
}
