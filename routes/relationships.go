package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"echograph/internal/config"
	"echograph/internal/queue"
	"echograph/internal/store"
	"echograph/middleware"
	"echograph/models"
	"echograph/utils"
)

func SetupRelationshipRoutes(router *gin.Engine, cfg *config.Config, st *store.Store,
	enqueuer *queue.Enqueuer, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {

	rels := router.Group("/relationships")
	rels.Use(authMW.RequireAuth())

	// GET /relationships/pending — review queue, oldest first.
	rels.GET("/pending", roleMW.ReviewerGuard(), func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		items, err := st.Relationships.ListPendingReview(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list pending relationships", nil)
			return
		}
		if items == nil {
			items = []models.DocumentRelationship{}
		}
		c.JSON(http.StatusOK, gin.H{
			"relationships": items,
			"count":         len(items),
		})
	})

	// GET /relationships/statistics — counts by type and validation status.
	rels.GET("/statistics", func(c *gin.Context) {
		stats, err := st.Relationships.Statistics(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compute statistics", nil)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// GET /relationships/document/:id — every edge touching a document.
	rels.GET("/document/:id", func(c *gin.Context) {
		docID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}
		items, err := st.Relationships.ListByDocument(c.Request.Context(), docID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list relationships", nil)
			return
		}
		if items == nil {
			items = []models.DocumentRelationship{}
		}
		c.JSON(http.StatusOK, gin.H{
			"document_id":   docID,
			"relationships": items,
			"count":         len(items),
		})
	})

	// GET /relationships/compare/:a/:b — edges between two documents in either
	// direction, filtered by an optional confidence floor in [0, 1].
	rels.GET("/compare/:a/:b", func(c *gin.Context) {
		docA, errA := strconv.ParseInt(c.Param("a"), 10, 64)
		docB, errB := strconv.ParseInt(c.Param("b"), 10, 64)
		if errA != nil || errB != nil {
			utils.RespondWithBadRequest(c, "Invalid document ids", nil)
			return
		}

		threshold := cfg.SimilarityThreshold
		if raw := c.Query("threshold"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed < 0 || parsed > 1 {
				utils.RespondWithBadRequest(c, "threshold must be a number in [0, 1]", nil)
				return
			}
			threshold = parsed
		}

		// Confidence is stored on the 0-100 scale.
		items, err := st.Relationships.ListByPair(c.Request.Context(), docA, docB, threshold*100)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compare documents", nil)
			return
		}
		if items == nil {
			items = []models.DocumentRelationship{}
		}
		c.JSON(http.StatusOK, gin.H{
			"source_doc_id": docA,
			"target_doc_id": docB,
			"relationships": items,
			"count":         len(items),
		})
	})

	// POST /relationships/:id/validate — advance the review lifecycle.
	rels.POST("/:id/validate", roleMW.ReviewerGuard(), func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid relationship id", nil)
			return
		}

		var req struct {
			Status models.ValidationStatus `json:"status" binding:"required"`
			Notes  string                  `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		rel, err := st.Relationships.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Relationship not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load relationship", nil)
			return
		}

		if !rel.ValidationStatus.CanTransitionTo(req.Status) {
			utils.RespondWithConflict(c, "invalid_transition",
				"Validation status transition is not allowed", gin.H{
					"current":   rel.ValidationStatus,
					"requested": req.Status,
				})
			return
		}

		err = st.Relationships.UpdateValidation(c.Request.Context(), id, req.Status,
			middleware.GetSubject(c), req.Notes, time.Now().UTC())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to update relationship", nil)
			return
		}

		rel, err = st.Relationships.GetByID(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to reload relationship", nil)
			return
		}
		c.JSON(http.StatusOK, rel)
	})

	// POST /relationships/extract — manual extraction run for one document.
	rels.POST("/extract", roleMW.ReviewerGuard(), func(c *gin.Context) {
		var req struct {
			DocumentID    int64   `json:"document_id" binding:"required"`
			TargetDocIDs  []int64 `json:"target_doc_ids"`
			Threshold     float64 `json:"threshold"`
			LimitPerChunk int     `json:"limit_per_chunk"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.Threshold < 0 || req.Threshold > 1 {
			utils.RespondWithBadRequest(c, "threshold must be in [0, 1]", nil)
			return
		}

		doc, err := st.Documents.GetByID(c.Request.Context(), req.DocumentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}
		if doc.Status != models.StatusReady {
			utils.RespondWithConflict(c, "document_not_ready",
				"Document must be ready before extracting relationships",
				gin.H{"status": doc.Status})
			return
		}

		taskID, err := enqueuer.EnqueueExtractRelationships(c.Request.Context(),
			queue.ExtractRelationshipsPayload{
				DocumentID:    req.DocumentID,
				TargetDocIDs:  req.TargetDocIDs,
				Threshold:     req.Threshold,
				LimitPerChunk: req.LimitPerChunk,
			})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to schedule relationship extraction", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"document_id": req.DocumentID,
			"task_id":     taskID,
		})
	})
}
