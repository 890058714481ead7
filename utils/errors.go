package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"depth-studio-backend/models"
)

// GenericGenerationError is the only failure text clients see for server-side errors.
const GenericGenerationError = "Failed to generate image due to a server error."

// RespondWithError sends the standard {"error": "..."} body
func RespondWithError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, models.ErrorResponse{Error: message})
}

// AbortWithError writes the error body and stops the handler chain
func AbortWithError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, models.ErrorResponse{Error: message})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, message)
}

// RespondWithInternalError sends a 500 with the generic message; details stay in the logs
func RespondWithInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, GenericGenerationError)
}
