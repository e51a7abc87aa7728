package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"finesight-backend/repository"
	"finesight-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PrecedentHandler serves precedent records and their source decision
// documents to the dashboard
type PrecedentHandler struct {
	precedentRepo    *repository.PrecedentRepository
	documentStorage  storage.Storage
	allowedMimeTypes map[string]bool
}

// NewPrecedentHandler creates a new precedent handler
func NewPrecedentHandler(precedentRepo *repository.PrecedentRepository, documentStorage storage.Storage) *PrecedentHandler {
	return &PrecedentHandler{
		precedentRepo:   precedentRepo,
		documentStorage: documentStorage,
		allowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
		},
	}
}

// GetPrecedent handles GET /api/precedents/:id
func (h *PrecedentHandler) GetPrecedent(c *gin.Context) {
	id := c.Param("id")

	precedent, err := h.precedentRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrPrecedentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Precedent not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    precedent,
	})
}

// UploadDocument handles POST /api/precedents/:id/document, attaching the
// source decision document (the authority's published decision, typically a
// PDF) to an existing precedent.
func (h *PrecedentHandler) UploadDocument(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.precedentRepo.GetByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Precedent not found",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Missing document file in form data",
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		if strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
			mimeType = "application/pdf"
		} else {
			mimeType = "application/octet-stream"
		}
	}

	if !h.allowedMimeTypes[mimeType] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "Document type not allowed. Allowed types: PDF, TXT",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": fmt.Sprintf("Failed to read uploaded file: %v", err),
			},
		})
		return
	}
	defer file.Close()

	key, err := h.documentStorage.Upload(c.Request.Context(), uuid.New(), fileHeader.Filename, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": fmt.Sprintf("Failed to store document: %v", err),
			},
		})
		return
	}

	if err := h.precedentRepo.UpdateDocumentKey(c.Request.Context(), id, key); err != nil {
		// Don't leave an orphaned object behind
		_ = h.documentStorage.Delete(c.Request.Context(), key)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": fmt.Sprintf("Failed to link document: %v", err),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"precedent_id": id,
			"document_key": key,
			"filename":     fileHeader.Filename,
			"size":         fileHeader.Size,
		},
	})
}

// GetDocument handles GET /api/precedents/:id/document
func (h *PrecedentHandler) GetDocument(c *gin.Context) {
	id := c.Param("id")

	precedent, err := h.precedentRepo.GetByID(c.Request.Context(), id)
	if err != nil || precedent.DocumentKey == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "No decision document for this precedent",
			},
		})
		return
	}

	reader, err := h.documentStorage.Download(c.Request.Context(), *precedent.DocumentKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DOWNLOAD_FAILED",
				"message": fmt.Sprintf("Failed to download document: %v", err),
			},
		})
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.pdf\"", id))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
}
