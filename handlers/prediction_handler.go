package handlers

import (
	"context"
	"errors"
	"net/http"

	"finesight-backend/models"
	"finesight-backend/service"

	"github.com/gin-gonic/gin"
)

// BreachPredictor is the slice of PredictionService the handler needs
type BreachPredictor interface {
	Predict(ctx context.Context, input *models.CaseInput) (*models.BreachImpactResult, error)
}

// PredictionHandler handles HTTP requests for breach-impact predictions
type PredictionHandler struct {
	predictor BreachPredictor
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(predictor BreachPredictor) *PredictionHandler {
	return &PredictionHandler{predictor: predictor}
}

// PredictBreachImpact handles POST /predict-breach-impact
func (h *PredictionHandler) PredictBreachImpact(c *gin.Context) {
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

	result, err := h.predictor.Predict(c.Request.Context(), &input)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writePipelineError maps pipeline failures to the response taxonomy
func writePipelineError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INPUT_VALIDATION_ERROR",
				"message": validationErr.Error(),
			},
		})
	case errors.Is(err, service.ErrNoPrecedentsFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NO_PRECEDENTS_FOUND",
				"message": "No comparable precedent cases were found for this input",
			},
		})
	case errors.Is(err, service.ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "TIMEOUT_ERROR",
				"message": err.Error(),
			},
		})
	case errors.Is(err, service.ErrRetrievalFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_ERROR",
				"message": "The precedent store is unreachable or returned malformed results",
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PREDICTION_FAILED",
				"message": err.Error(),
			},
		})
	}
}
