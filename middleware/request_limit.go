package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echograph/utils"
)

// RequestSizeLimit rejects bodies larger than maxSize before they are read.
// The upload route sets this to the configured maximum file size.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"file_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}
		c.Next()
	}
}
