package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"finesight-backend/models"
)

// PipelineStage identifies one phase of the prediction pipeline. Stages run
// strictly in order; Analyzing is internally parallel but externally atomic.
type PipelineStage string

const (
	StageValidating      PipelineStage = "Validating"
	StageRetrieving      PipelineStage = "Retrieving"
	StageSelecting       PipelineStage = "Selecting"
	StageFetchingDetails PipelineStage = "FetchingDetails"
	StageAnalyzing       PipelineStage = "Analyzing"
	StageAggregating     PipelineStage = "Aggregating"
	StageDone            PipelineStage = "Done"
	StageFailed          PipelineStage = "Failed"
)

const (
	// shortlistSize is the number of unique precedents analyzed per request
	shortlistSize = 5

	defaultRetrievalTimeout = 15 * time.Second
	defaultDetailTimeout    = 10 * time.Second
	defaultNarrateTimeout   = 45 * time.Second
)

var (
	// ErrRetrievalFailed means the precedent store was unreachable or
	// returned malformed results. Fatal: a prediction with no precedent
	// basis is disallowed, so there is no retrieval fallback.
	ErrRetrievalFailed = errors.New("failed to retrieve precedent candidates")

	// ErrNoPrecedentsFound means the shortlist was empty after search
	// deduplication or after per-candidate fetch failures.
	ErrNoPrecedentsFound = errors.New("no precedent cases found")

	// ErrStageTimeout means a pipeline stage exceeded its time bound
	ErrStageTimeout = errors.New("pipeline stage timed out")
)

// PredictionService sequences the breach-impact pipeline:
// Validating -> Retrieving -> Selecting -> FetchingDetails -> Analyzing ->
// Aggregating. Caller cancellation propagates into every stage.
type PredictionService struct {
	store        PrecedentStore
	orchestrator *AnalysisOrchestrator
	aggregator   *FineAggregator

	retrievalTimeout time.Duration
	detailTimeout    time.Duration
	narrateTimeout   time.Duration
}

// PredictionServiceOption is a functional option for PredictionService
type PredictionServiceOption func(*PredictionService)

// WithPrecedentStore sets the precedent store
func WithPrecedentStore(store PrecedentStore) PredictionServiceOption {
	return func(s *PredictionService) {
		s.store = store
	}
}

// WithOrchestrator sets the analysis orchestrator
func WithOrchestrator(o *AnalysisOrchestrator) PredictionServiceOption {
	return func(s *PredictionService) {
		s.orchestrator = o
	}
}

// WithAggregator sets the fine aggregator
func WithAggregator(a *FineAggregator) PredictionServiceOption {
	return func(s *PredictionService) {
		s.aggregator = a
	}
}

// WithRetrievalTimeout bounds the corpus search stage
func WithRetrievalTimeout(d time.Duration) PredictionServiceOption {
	return func(s *PredictionService) {
		if d > 0 {
			s.retrievalTimeout = d
		}
	}
}

// NewPredictionService creates a new prediction service
func NewPredictionService(opts ...PredictionServiceOption) *PredictionService {
	s := &PredictionService{
		retrievalTimeout: defaultRetrievalTimeout,
		detailTimeout:    defaultDetailTimeout,
		narrateTimeout:   defaultNarrateTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StageObserver is notified when the pipeline enters a stage. Used by the
// assessment job runner to surface progress; nil observers are fine.
type StageObserver func(PipelineStage)

// Predict runs the full pipeline for one case and returns the composite
// result. Fatal errors map to the taxonomy sentinels; no partial result is
// ever returned alongside an error.
func (s *PredictionService) Predict(ctx context.Context, input *models.CaseInput) (*models.BreachImpactResult, error) {
	return s.PredictObserved(ctx, input, nil)
}

// PredictObserved is Predict with stage-transition notifications
func (s *PredictionService) PredictObserved(ctx context.Context, input *models.CaseInput, observe StageObserver) (*models.BreachImpactResult, error) {
	if s.store == nil {
		return nil, errors.New("precedent store not set")
	}
	if s.orchestrator == nil {
		return nil, errors.New("analysis orchestrator not set")
	}
	if s.aggregator == nil {
		return nil, errors.New("fine aggregator not set")
	}

	enter := func(stage PipelineStage) {
		if observe != nil {
			observe(stage)
		}
	}

	// Validating: rejected before any external call
	enter(StageValidating)
	if err := input.Validate(); err != nil {
		return nil, err
	}

	enter(StageRetrieving)
	hits, err := s.retrieve(ctx, input)
	if err != nil {
		return nil, err
	}

	enter(StageSelecting)
	shortlist := selectCandidates(hits, shortlistSize)
	if len(shortlist) == 0 {
		return nil, ErrNoPrecedentsFound
	}

	enter(StageFetchingDetails)
	precedents, err := s.fetchDetails(ctx, shortlist, input)
	if err != nil {
		return nil, err
	}

	// Analyzing is internally parallel but externally atomic
	enter(StageAnalyzing)
	assessments, err := s.orchestrator.Analyze(ctx, input, precedents)
	if err != nil {
		return nil, err
	}

	similarCases := joinSimilarCases(precedents, assessments)
	sortSimilarCases(similarCases)

	enter(StageAggregating)
	prediction, err := s.aggregate(ctx, input, similarCases)
	if err != nil {
		return nil, err
	}

	enter(StageDone)

	return &models.BreachImpactResult{
		SimilarCases:     similarCases,
		PredictionResult: *prediction,
	}, nil
}

// retrieve runs the bounded corpus search stage
func (s *PredictionService) retrieve(ctx context.Context, input *models.CaseInput) ([]models.PrecedentHit, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.retrievalTimeout)
	defer cancel()

	hits, err := s.store.Search(stageCtx, input)
	if err != nil {
		if stageErr := stageTimeout(ctx, stageCtx, StageRetrieving); stageErr != nil {
			return nil, stageErr
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	return hits, nil
}

// fetchDetails loads the full record for each shortlisted precedent.
// Fetches are independent; a failed candidate is dropped rather than failing
// the request, as long as at least one candidate survives.
func (s *PredictionService) fetchDetails(ctx context.Context, ids []string, input *models.CaseInput) ([]*models.PrecedentCase, error) {
	precedents := make([]*models.PrecedentCase, 0, len(ids))
	for _, id := range ids {
		stageCtx, cancel := context.WithTimeout(ctx, s.detailTimeout)
		precedent, err := s.store.FetchDetail(stageCtx, id, input)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Warning: Failed to fetch detail for precedent %s: %v. Dropping candidate.", id, err)
			continue
		}
		precedents = append(precedents, precedent)
	}

	if len(precedents) == 0 {
		return nil, ErrNoPrecedentsFound
	}
	return precedents, nil
}

// aggregate runs the bounded aggregation stage
func (s *PredictionService) aggregate(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase) (*models.PredictionResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.narrateTimeout)
	defer cancel()

	prediction, err := s.aggregator.Aggregate(stageCtx, input, cases)
	if err != nil {
		if stageErr := stageTimeout(ctx, stageCtx, StageAggregating); stageErr != nil {
			return nil, stageErr
		}
		return nil, err
	}
	return prediction, nil
}

// stageTimeout distinguishes a stage deadline from caller cancellation
func stageTimeout(parent, stage context.Context, name PipelineStage) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(stage.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrStageTimeout, name)
	}
	return nil
}

// selectCandidates deduplicates the ranked hits by precedent identity,
// keeping the first occurrence of each, and truncates to limit unique cases.
// No re-sorting: tie-breaking is whatever rank order retrieval produced.
func selectCandidates(hits []models.PrecedentHit, limit int) []string {
	seen := make(map[string]bool, limit)
	var ids []string
	for _, hit := range hits {
		if hit.PrecedentID == "" || seen[hit.PrecedentID] {
			continue
		}
		seen[hit.PrecedentID] = true
		ids = append(ids, hit.PrecedentID)
		if len(ids) == limit {
			break
		}
	}
	return ids
}

// joinSimilarCases pairs each precedent with its assessment. The orchestrator
// guarantees assessments[i] belongs to precedents[i].
func joinSimilarCases(precedents []*models.PrecedentCase, assessments []models.SimilarityAssessment) []models.SimilarCase {
	cases := make([]models.SimilarCase, 0, len(precedents))
	for i, p := range precedents {
		cases = append(cases, models.SimilarCase{
			ID:                      p.ID,
			Company:                 p.Company,
			Description:             p.Violation,
			Fine:                    p.FineEUR,
			Similarity:              assessments[i].Similarity,
			ExplanationOfSimilarity: assessments[i].Explanation,
			Date:                    p.Date,
			Authority:               p.Authority,
		})
	}
	return cases
}

// sortSimilarCases orders by similarity descending, ties broken by fine
// descending then id ascending, so identical inputs always render the same
// list.
func sortSimilarCases(cases []models.SimilarCase) {
	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].Similarity != cases[j].Similarity {
			return cases[i].Similarity > cases[j].Similarity
		}
		if cases[i].Fine != cases[j].Fine {
			return cases[i].Fine > cases[j].Fine
		}
		return cases[i].ID < cases[j].ID
	})
}
