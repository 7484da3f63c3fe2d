package routes

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"echograph/internal/config"
	"echograph/internal/logger"
	"echograph/internal/queue"
	"echograph/internal/storage"
	"echograph/internal/store"
	"echograph/internal/vectorstore"
	"echograph/middleware"
	"echograph/models"
	"echograph/utils"
)

func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, st *store.Store,
	blob *storage.Client, vectors *vectorstore.Store, enqueuer *queue.Enqueuer,
	authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {

	docs := router.Group("/documents")
	docs.Use(authMW.RequireAuth())

	// POST /documents — multipart upload. Persists the row, stores the blob
	// and enqueues processing; the pipeline picks it up from there.
	docs.POST("",
		roleMW.ReviewerGuard(),
		middleware.RequestSizeLimit(cfg.MaxFileSize+1024*1024),
		func(c *gin.Context) {
			fileHeader, err := c.FormFile("file")
			if err != nil {
				utils.RespondWithBadRequest(c, "A file is required", gin.H{"error": err.Error()})
				return
			}

			ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
			if !isAllowedType(ext, cfg.AllowedTypes) {
				utils.RespondWithError(c, http.StatusBadRequest, "unsupported_file_type",
					"File type is not supported", gin.H{
						"file_type":     ext,
						"allowed_types": cfg.AllowedTypes,
					})
				return
			}
			if fileHeader.Size > cfg.MaxFileSize {
				utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
					"File exceeds the maximum upload size", gin.H{
						"file_size": fileHeader.Size,
						"max_size":  cfg.MaxFileSize,
					})
				return
			}

			docType := models.DocumentType(c.PostForm("document_type"))
			if docType != models.DocumentTypeNorm && docType != models.DocumentTypeGuideline {
				utils.RespondWithBadRequest(c, "document_type must be 'norm' or 'guideline'", nil)
				return
			}

			title := strings.TrimSpace(c.PostForm("title"))
			if title == "" {
				title = strings.TrimSuffix(fileHeader.Filename, ext)
			}

			var tags []string
			if raw := strings.TrimSpace(c.PostForm("tags")); raw != "" {
				for _, tag := range strings.Split(raw, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						tags = append(tags, tag)
					}
				}
			}

			objectName := "documents/" + uuid.NewString() + ext

			src, err := fileHeader.Open()
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to read uploaded file", nil)
				return
			}
			defer src.Close()

			contentType := mime.TypeByExtension(ext)
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if _, err := blob.UploadStream(c.Request.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
				logger.Error("Blob upload failed", "object", objectName, "error", err)
				utils.RespondWithInternalError(c, "Failed to store uploaded file", nil)
				return
			}

			doc := &models.Document{
				Title:        title,
				DocumentType: docType,
				FilePath:     objectName,
				FileType:     ext,
				FileSize:     fileHeader.Size,
				Author:       strings.TrimSpace(c.PostForm("author")),
				Category:     strings.TrimSpace(c.PostForm("category")),
				Tags:         tags,
				Description:  strings.TrimSpace(c.PostForm("description")),
				Version:      strings.TrimSpace(c.PostForm("version")),
				Status:       models.StatusUploading,
			}
			if err := st.Documents.Create(c.Request.Context(), doc); err != nil {
				// Orphaned blob, best effort to reclaim it.
				if delErr := blob.Delete(c.Request.Context(), objectName); delErr != nil {
					logger.Warn("Failed to delete orphaned blob", "object", objectName, "error", delErr)
				}
				utils.RespondWithInternalError(c, "Failed to create document", nil)
				return
			}

			taskID, err := enqueuer.EnqueueProcessDocument(c.Request.Context(), doc.ID)
			if err != nil {
				logger.Error("Failed to enqueue document processing",
					"document_id", doc.ID, "error", err)
				if setErr := st.Documents.SetError(c.Request.Context(), doc.ID,
					"failed to enqueue processing: "+err.Error()); setErr != nil {
					logger.Error("Failed to record enqueue error", "document_id", doc.ID, "error", setErr)
				}
				utils.RespondWithInternalError(c, "Failed to schedule document processing", nil)
				return
			}

			c.JSON(http.StatusAccepted, gin.H{
				"document": doc,
				"task_id":  taskID,
			})
		})

	// GET /documents — filtered page, newest first.
	docs.GET("", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		filter := store.DocumentFilter{
			DocumentType: models.DocumentType(c.Query("document_type")),
			Category:     c.Query("category"),
			Status:       models.DocumentStatus(c.Query("status")),
			Search:       c.Query("search"),
			Limit:        pageSize,
			Offset:       (page - 1) * pageSize,
		}

		items, total, err := st.Documents.List(c.Request.Context(), filter)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		if items == nil {
			items = []models.Document{}
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": items,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	})

	// GET /documents/statistics — dashboard counts by type and status.
	docs.GET("/statistics", func(c *gin.Context) {
		stats, err := st.Documents.Statistics(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to compute statistics", nil)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	docs.GET("/:id", func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// GET /documents/:id/chunks — the persisted chunk rows in order.
	docs.GET("/:id/chunks", func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}
		chunks, err := st.Chunks.GetByDocument(c.Request.Context(), doc.ID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load chunks", nil)
			return
		}
		if chunks == nil {
			chunks = []models.DocumentChunk{}
		}
		c.JSON(http.StatusOK, gin.H{
			"document_id": doc.ID,
			"chunks":      chunks,
			"count":       len(chunks),
		})
	})

	// GET /documents/:id/download — short-lived presigned URL for the blob.
	docs.GET("/:id/download", func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}
		url, err := blob.PresignedURL(c.Request.Context(), doc.FilePath, storage.DefaultPresignTTL)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to generate download link", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})

	// PUT /documents/:id — metadata patch; content is immutable.
	docs.PUT("/:id", roleMW.ReviewerGuard(), func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}

		var req struct {
			Title       *string   `json:"title"`
			Category    *string   `json:"category"`
			Tags        *[]string `json:"tags"`
			Description *string   `json:"description"`
			Version     *string   `json:"version"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
			doc.Title = strings.TrimSpace(*req.Title)
		}
		if req.Category != nil {
			doc.Category = strings.TrimSpace(*req.Category)
		}
		if req.Tags != nil {
			doc.Tags = *req.Tags
		}
		if req.Description != nil {
			doc.Description = strings.TrimSpace(*req.Description)
		}
		if req.Version != nil {
			doc.Version = strings.TrimSpace(*req.Version)
		}

		if err := st.Documents.UpdateMetadata(c.Request.Context(), doc); err != nil {
			utils.RespondWithInternalError(c, "Failed to update document", nil)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// POST /documents/:id/reprocess — rerun the pipeline; the worker drops the
	// previous chunk generation before persisting the new one.
	docs.POST("/:id/reprocess", roleMW.ReviewerGuard(), func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}
		if !doc.Status.IsTerminal() {
			utils.RespondWithConflict(c, "document_busy",
				"Document is still being processed", gin.H{"status": doc.Status})
			return
		}

		taskID, err := enqueuer.EnqueueProcessDocument(c.Request.Context(), doc.ID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to schedule reprocessing", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"document_id": doc.ID,
			"task_id":     taskID,
		})
	})

	// DELETE /documents/:id — removes the row (chunks and relationships
	// cascade), the vector points and the blob. Vector and blob cleanup are
	// best effort once the row is gone.
	docs.DELETE("/:id", roleMW.AdminGuard(), func(c *gin.Context) {
		doc, ok := loadDocument(c, st)
		if !ok {
			return
		}

		if err := st.Documents.Delete(c.Request.Context(), doc.ID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document", nil)
			return
		}
		if err := vectors.DeleteByDocument(c.Request.Context(), doc.ID); err != nil {
			logger.Warn("Failed to delete vector points", "document_id", doc.ID, "error", err)
		}
		if err := blob.Delete(c.Request.Context(), doc.FilePath); err != nil {
			logger.Warn("Failed to delete blob", "object", doc.FilePath, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "document deleted", "document_id": doc.ID})
	})
}

func loadDocument(c *gin.Context, st *store.Store) (*models.Document, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", nil)
		return nil, false
	}
	doc, err := st.Documents.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithNotFound(c, "Document not found")
			return nil, false
		}
		utils.RespondWithInternalError(c, "Failed to load document", nil)
		return nil, false
	}
	return doc, true
}

func isAllowedType(ext string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ext) {
			return true
		}
	}
	return false
}
