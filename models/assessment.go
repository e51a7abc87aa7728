package models

// SimilarityAssessment is the outcome of comparing the input case against one
// precedent. Exactly one assessment exists per shortlisted precedent, even
// when the analysis call failed (Fallback is then true). Immutable once
// produced.
type SimilarityAssessment struct {
	PrecedentID string `json:"precedent_id"`
	Similarity  int    `json:"similarity"` // 0-100
	Explanation string `json:"explanation"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// SimilarCase is one entry of the externally visible similar-cases list: a
// precedent joined with its similarity assessment.
type SimilarCase struct {
	ID                      string `json:"id"`
	Company                 string `json:"company"`
	Description             string `json:"description"`
	Fine                    int64  `json:"fine"`
	Similarity              int    `json:"similarity"`
	ExplanationOfSimilarity string `json:"explanation_of_similarity"`
	Date                    string `json:"date"`
	Authority               string `json:"authority"`
}

// PredictionResult is the aggregated fine estimate with its rationale. The
// numeric value is derived deterministically from the (fine, similarity)
// pairs; the explanation text is narrative only and never feeds back into
// the number.
type PredictionResult struct {
	PredictedFine      int64  `json:"predicted_fine"`
	ExplanationForFine string `json:"explanation_for_fine"`

	// LowConfidence is set when no precedent scored above zero and the
	// unweighted fallback mean was used.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// BreachImpactResult is the composite returned for one prediction request.
// SimilarCases is sorted by similarity descending, ties broken by fine
// descending then id ascending.
type BreachImpactResult struct {
	SimilarCases     []SimilarCase    `json:"similar_cases"`
	PredictionResult PredictionResult `json:"prediction_result"`
}
