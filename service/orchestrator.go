package service

import (
	"context"
	"log"
	"time"

	"finesight-backend/models"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkerLimit bounds the per-request analysis fan-out
	DefaultWorkerLimit = 5

	// DefaultOracleConcurrency bounds oracle calls across all in-flight
	// requests so a burst of predictions cannot overload the model API
	DefaultOracleConcurrency = 10

	// DefaultWorkerTimeout bounds one similarity analysis call
	DefaultWorkerTimeout = 20 * time.Second

	// fallbackSimilarity is the sentinel score for a candidate whose
	// analysis call failed outright
	fallbackSimilarity = 10

	fallbackExplanation = "Similarity analysis could not be completed for this precedent; " +
		"a low sentinel score was assigned so the case is reported but carries minimal weight."
)

// AnalysisOrchestrator fans one similarity worker out per shortlisted
// precedent and joins all results. The join is count-preserving: a failed or
// timed-out worker contributes a fallback assessment, never a gap.
type AnalysisOrchestrator struct {
	oracle        ReasoningOracle
	workerLimit   int
	workerTimeout time.Duration

	// oracleSem bounds concurrent oracle calls across requests
	oracleSem chan struct{}
}

// OrchestratorOption is a functional option for AnalysisOrchestrator
type OrchestratorOption func(*AnalysisOrchestrator)

// WithWorkerLimit caps the per-request fan-out width
func WithWorkerLimit(n int) OrchestratorOption {
	return func(o *AnalysisOrchestrator) {
		if n > 0 {
			o.workerLimit = n
		}
	}
}

// WithWorkerTimeout bounds each similarity analysis call
func WithWorkerTimeout(d time.Duration) OrchestratorOption {
	return func(o *AnalysisOrchestrator) {
		if d > 0 {
			o.workerTimeout = d
		}
	}
}

// WithOracleConcurrency bounds total concurrent oracle calls across requests
func WithOracleConcurrency(n int) OrchestratorOption {
	return func(o *AnalysisOrchestrator) {
		if n > 0 {
			o.oracleSem = make(chan struct{}, n)
		}
	}
}

// NewAnalysisOrchestrator creates an orchestrator for the given oracle
func NewAnalysisOrchestrator(oracle ReasoningOracle, opts ...OrchestratorOption) *AnalysisOrchestrator {
	o := &AnalysisOrchestrator{
		oracle:        oracle,
		workerLimit:   DefaultWorkerLimit,
		workerTimeout: DefaultWorkerTimeout,
		oracleSem:     make(chan struct{}, DefaultOracleConcurrency),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze scores the input case against every precedent concurrently and
// returns one assessment per precedent, in input order. It fails only on
// caller cancellation; individual worker failures are isolated into
// fallback assessments.
func (o *AnalysisOrchestrator) Analyze(
	ctx context.Context,
	input *models.CaseInput,
	precedents []*models.PrecedentCase,
) ([]models.SimilarityAssessment, error) {
	assessments := make([]models.SimilarityAssessment, len(precedents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workerLimit)

	for i, precedent := range precedents {
		i, precedent := i, precedent
		g.Go(func() error {
			assessments[i] = o.analyzeOne(gctx, input, precedent)
			return nil
		})
	}

	// Worker errors are captured in the assessments; Wait only observes
	// context cancellation via gctx inside the workers.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return assessments, nil
}

// analyzeOne runs a single bounded similarity analysis call
func (o *AnalysisOrchestrator) analyzeOne(
	ctx context.Context,
	input *models.CaseInput,
	precedent *models.PrecedentCase,
) models.SimilarityAssessment {
	// Respect the cross-request oracle bound before starting the clock
	select {
	case o.oracleSem <- struct{}{}:
		defer func() { <-o.oracleSem }()
	case <-ctx.Done():
		return fallbackAssessment(input, precedent)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.workerTimeout)
	defer cancel()

	result, err := o.oracle.Score(callCtx, input, precedent)
	if err != nil {
		log.Printf("Warning: Similarity analysis failed for %s: %v. Substituting fallback assessment.", precedent.ID, err)
		return fallbackAssessment(input, precedent)
	}

	explanation := result.Explanation
	if explanation == "" {
		explanation = "The oracle returned a score without justification."
	}

	return models.SimilarityAssessment{
		PrecedentID: precedent.ID,
		Similarity:  clampSimilarity(result.Similarity),
		Explanation: explanation,
	}
}

// fallbackAssessment substitutes for a failed analysis call. The score is
// always the low sentinel so a precedent whose analysis failed carries
// minimal weight; the classification overlap, when known, only enriches the
// explanation.
func fallbackAssessment(input *models.CaseInput, precedent *models.PrecedentCase) models.SimilarityAssessment {
	explanation := fallbackExplanation
	if matches, classified := classificationOverlap(input, precedent); classified {
		explanation += " The cases share " + overlapPhrase(matches) + " of 4 GDPR classification dimensions."
	}

	return models.SimilarityAssessment{
		PrecedentID: precedent.ID,
		Similarity:  fallbackSimilarity,
		Explanation: explanation,
		Fallback:    true,
	}
}

// classificationOverlap counts classification dimensions shared between the
// input case and a precedent. classified is false when the precedent has no
// stored labels at all.
func classificationOverlap(input *models.CaseInput, precedent *models.PrecedentCase) (matches int, classified bool) {
	inputLabels := input.ClassificationLabels()
	precedentLabels := precedent.ClassificationLabels()

	for i := range inputLabels {
		if precedentLabels[i] == "" {
			continue
		}
		classified = true
		if inputLabels[i] == precedentLabels[i] {
			matches++
		}
	}
	return matches, classified
}

func overlapPhrase(matches int) string {
	switch matches {
	case 0:
		return "zero"
	case 1:
		return "one"
	case 2:
		return "two"
	case 3:
		return "three"
	default:
		return "four"
	}
}
