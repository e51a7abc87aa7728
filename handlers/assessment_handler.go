package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"finesight-backend/models"
	"finesight-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AssessmentHandler handles HTTP requests for asynchronous assessments
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: assessmentService}
}

// CreateAssessment handles POST /api/assessments
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	var input models.CaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	jobID, err := h.assessmentService.Enqueue(c.Request.Context(), &input)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INPUT_VALIDATION_ERROR",
					"message": validationErr.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "JOB_CREATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// The pipeline runs detached from the request context so a closed
	// connection does not abort a job the caller intends to poll
	go func() {
		if err := h.assessmentService.ProcessAssessment(context.Background(), jobID); err != nil {
			log.Printf("Assessment job %s failed: %v", jobID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"job_id": jobID,
			"status": models.JobStatusPending,
		},
	})
}

// GetAssessment handles GET /api/assessments/:id
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid assessment job ID format",
			},
		})
		return
	}

	job, err := h.assessmentService.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Assessment job not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    job,
	})
}
