package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"depth-studio-backend/utils"
)

// RequestSizeLimit rejects bodies larger than maxSize. Declared lengths are
// checked up front; chunked bodies are cut off by http.MaxBytesReader.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.AbortWithError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d MB", maxSize/(1024*1024)))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
