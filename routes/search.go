package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"echograph/internal/search"
	"echograph/middleware"
	"echograph/models"
	"echograph/utils"
)

func SetupSearchRoutes(router *gin.Engine, svc *search.Service,
	authMW *middleware.AuthMiddleware) {

	// POST /search — semantic search over ready document chunks.
	router.POST("/search", authMW.RequireAuth(), func(c *gin.Context) {
		var req struct {
			Query          string              `json:"query" binding:"required"`
			DocumentType   models.DocumentType `json:"document_type"`
			Limit          int                 `json:"limit"`
			ScoreThreshold float64             `json:"score_threshold"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.DocumentType != "" &&
			req.DocumentType != models.DocumentTypeNorm &&
			req.DocumentType != models.DocumentTypeGuideline {
			utils.RespondWithBadRequest(c, "document_type must be 'norm' or 'guideline'", nil)
			return
		}

		results, err := svc.Search(c.Request.Context(), search.Params{
			Query:          req.Query,
			DocumentType:   req.DocumentType,
			Limit:          req.Limit,
			ScoreThreshold: req.ScoreThreshold,
		})
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				utils.RespondWithBadRequest(c, "Search query must not be empty", nil)
				return
			}
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}
		if results == nil {
			results = []search.Result{}
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"results": results,
			"count":   len(results),
		})
	})
}
