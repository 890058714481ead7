package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "room.jpg", hdr.Filename)
		assert.Equal(t, "IMG", string(data))
		assert.Equal(t, "loft", r.FormValue("prompt"))
		assert.Equal(t, "0.5", r.FormValue("strength"))

		_, _ = w.Write([]byte(`{"imageUrl":"http://x/static/output_1_a.png"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/", nil).Generate(context.Background(), GenerateParams{
		Image:    strings.NewReader("IMG"),
		Filename: "room.jpg",
		Prompt:   "loft",
		Strength: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://x/static/output_1_a.png", resp.ImageURL)
}

func TestClient_GenerateOmitsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasPrompt := r.MultipartForm.Value["prompt"]
		_, hasStrength := r.MultipartForm.Value["strength"]
		assert.False(t, hasPrompt)
		assert.False(t, hasStrength)
		_, _ = w.Write([]byte(`{"imageUrl":"u"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Generate(context.Background(), GenerateParams{Image: strings.NewReader("IMG")})
	require.NoError(t, err)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No image file provided"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Generate(context.Background(), GenerateParams{Image: strings.NewReader("")})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "No image file provided", apiErr.Message)
}

func TestClient_DownloadAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"2026-01-01T00:00:00Z"}`))
		case "/static/output_1_a.png":
			_, _ = w.Write([]byte("PNGDATA"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), srv.URL+"/static/output_1_a.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "PNGDATA", buf.String())

	_, err = c.Download(context.Background(), srv.URL+"/static/missing.png", &buf)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
