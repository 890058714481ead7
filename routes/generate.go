package routes

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"depth-studio-backend/internal/config"
	"depth-studio-backend/internal/logger"
	"depth-studio-backend/middleware"
	"depth-studio-backend/models"
	"depth-studio-backend/services"
	"depth-studio-backend/utils"
)

// SetupGenerateRoutes registers the generation API, the output file route and health.
func SetupGenerateRoutes(router *gin.Engine, cfg *config.Config, svc *services.GenerationService, store *services.ImageStore) {
	router.GET("/health", HandleHealth())

	api := router.Group("/api")
	{
		api.POST("/generate", HandleGenerate(svc, cfg))
	}

	router.GET("/static/:filename", HandleServeOutput(store))
	router.HEAD("/static/:filename", HandleServeOutput(store))
}

// HandleGenerate accepts a multipart image plus optional prompt and strength,
// runs the generator and returns the URL of the stored result.
func HandleGenerate(svc *services.GenerationService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.GenerateForm

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "Request body exceeds maximum size")
				return
			}
			utils.RespondWithBadRequest(c, "No image file provided")
			return
		}
		if err := c.ShouldBind(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid form data")
			return
		}

		src, err := file.Open()
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid image file: "+err.Error())
			return
		}
		defer src.Close()

		name, err := svc.Generate(c.Request.Context(), services.GenerationInput{
			Image:    src,
			Prompt:   form.Prompt,
			Strength: form.Strength,
		})
		var imgErr *services.ImageError
		switch {
		case errors.As(err, &imgErr):
			utils.RespondWithBadRequest(c, "Invalid image file: "+imgErr.Err.Error())
			return
		case errors.Is(err, services.ErrInvalidStrength):
			utils.RespondWithBadRequest(c, services.ErrInvalidStrength.Error())
			return
		case err != nil:
			logger.Error("Error during image generation",
				"request_id", middleware.GetRequestID(c),
				"error", err,
			)
			utils.RespondWithInternalError(c)
			return
		}

		c.JSON(http.StatusOK, models.GenerateResponse{
			ImageURL: baseURL(c, cfg) + "/static/" + name,
		})
	}
}

// HandleServeOutput serves generated files by name
func HandleServeOutput(store *services.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		if !services.IsOutputName(filename) {
			utils.RespondWithError(c, http.StatusNotFound, "File not found")
			return
		}
		filePath := store.Path(filename)

		info, err := os.Stat(filePath)
		if err != nil || info.IsDir() {
			utils.RespondWithError(c, http.StatusNotFound, "File not found")
			return
		}

		// Outputs are never rewritten under the same name
		c.Header("Content-Type", utils.ContentTypeForFile(filename))
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.File(filePath)
	}
}

func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// baseURL is PUBLIC_BASE_URL when set, otherwise the scheme and host the
// client used, honouring reverse proxy headers.
func baseURL(c *gin.Context, cfg *config.Config) string {
	if cfg.PublicBaseURL != "" {
		return cfg.PublicBaseURL
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(c.GetHeader("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}

	host := c.Request.Host
	if fwd := firstHeaderValue(c.GetHeader("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}

	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
