package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"finesight-backend/models"
)

// FineAggregator combines per-precedent similarity assessments into a single
// fine estimate. The number is the deterministic similarity-weighted mean of
// the precedent fines; the oracle contributes narrative only.
type FineAggregator struct {
	oracle ReasoningOracle
}

// NewFineAggregator creates a fine aggregator over the given oracle
func NewFineAggregator(oracle ReasoningOracle) *FineAggregator {
	return &FineAggregator{oracle: oracle}
}

// Aggregate produces the prediction for the joined similar-cases list.
// cases must be non-empty; the selector guarantees that upstream.
func (a *FineAggregator) Aggregate(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase) (*models.PredictionResult, error) {
	predictedFine, lowConfidence := WeightedFine(cases)

	explanation, err := a.oracle.Narrate(ctx, input, cases, predictedFine)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Narrative is best-effort; the numeric result stands on its own
		log.Printf("Warning: Rationale generation failed: %v. Using synthesized explanation.", err)
		explanation = synthesizeExplanation(cases, predictedFine)
	}

	if lowConfidence {
		explanation = "LOW CONFIDENCE: no precedent scored above zero similarity, so the estimate " +
			"is an unweighted mean of the candidate fines. " + explanation
	}

	return &models.PredictionResult{
		PredictedFine:      predictedFine,
		ExplanationForFine: explanation,
		LowConfidence:      lowConfidence,
	}, nil
}

// WeightedFine computes round(sum(fine*similarity) / sum(similarity)) over
// the entries with similarity > 0. Zero-similarity entries stay out of the
// weighting but remain in the reported list. When every similarity is zero
// the result degrades to the unweighted mean and lowConfidence is set.
// The result depends only on the (fine, similarity) multiset, never on order.
func WeightedFine(cases []models.SimilarCase) (fine int64, lowConfidence bool) {
	if len(cases) == 0 {
		return 0, true
	}

	var weightedSum, weightTotal float64
	for _, c := range cases {
		if c.Similarity <= 0 {
			continue
		}
		weightedSum += float64(c.Fine) * float64(c.Similarity)
		weightTotal += float64(c.Similarity)
	}

	if weightTotal == 0 {
		var sum float64
		for _, c := range cases {
			sum += float64(c.Fine)
		}
		return int64(math.Round(sum / float64(len(cases)))), true
	}

	return int64(math.Round(weightedSum / weightTotal)), false
}

// synthesizeExplanation builds a deterministic rationale when the narrative
// oracle call fails
func synthesizeExplanation(cases []models.SimilarCase, predictedFine int64) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(
		"The estimate of EUR %d is the similarity-weighted average of %d precedent fines: ",
		predictedFine, len(cases)))
	for i, c := range cases {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(fmt.Sprintf("%s (EUR %d at %d%% similarity)", c.Company, c.Fine, c.Similarity))
	}
	builder.WriteString(". A narrative rationale could not be generated for this request.")
	return builder.String()
}
