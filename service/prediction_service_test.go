package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finesight-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is a configurable PrecedentStore for tests
type stubStore struct {
	mu          sync.Mutex
	searchCalls int
	fetchCalls  int

	searchFn func(ctx context.Context, input *models.CaseInput) ([]models.PrecedentHit, error)
	fetchFn  func(ctx context.Context, precedentID string, input *models.CaseInput) (*models.PrecedentCase, error)
}

func (s *stubStore) Search(ctx context.Context, input *models.CaseInput) ([]models.PrecedentHit, error) {
	s.mu.Lock()
	s.searchCalls++
	s.mu.Unlock()
	if s.searchFn != nil {
		return s.searchFn(ctx, input)
	}
	return nil, nil
}

func (s *stubStore) FetchDetail(ctx context.Context, precedentID string, input *models.CaseInput) (*models.PrecedentCase, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if s.fetchFn != nil {
		return s.fetchFn(ctx, precedentID, input)
	}
	return &models.PrecedentCase{ID: precedentID, Company: "Company " + precedentID}, nil
}

func (s *stubStore) SearchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCalls
}

func hitsFor(precedentIDs ...string) []models.PrecedentHit {
	hits := make([]models.PrecedentHit, 0, len(precedentIDs))
	for i, id := range precedentIDs {
		hits = append(hits, models.PrecedentHit{
			ChunkID:     uuid.New(),
			PrecedentID: id,
			Score:       1.0 - float64(i)*0.01,
		})
	}
	return hits
}

func newTestService(store PrecedentStore, oracle ReasoningOracle, opts ...PredictionServiceOption) *PredictionService {
	base := []PredictionServiceOption{
		WithPrecedentStore(store),
		WithOrchestrator(NewAnalysisOrchestrator(oracle)),
		WithAggregator(NewFineAggregator(oracle)),
	}
	return NewPredictionService(append(base, opts...)...)
}

func TestPredictRejectsInvalidInputBeforeRetrieval(t *testing.T) {
	store := &stubStore{}
	oracle := &stubOracle{}
	svc := newTestService(store, oracle)

	input := validInput()
	input.LawfulnessOfProcessing = "totally_fine_probably"

	result, err := svc.Predict(context.Background(), input)
	require.Error(t, err)
	assert.Nil(t, result)

	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "lawfulness_of_processing", validationErr.Field)

	assert.Zero(t, store.SearchCalls(), "invalid input must be rejected before any retrieval call")
	assert.Zero(t, oracle.ScoreCalls())
}

func TestPredictEmptyDescriptionRejected(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store, &stubOracle{})

	input := validInput()
	input.CaseDescription = "   "

	_, err := svc.Predict(context.Background(), input)
	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "case_description", validationErr.Field)
	assert.Zero(t, store.SearchCalls())
}

func TestPredictNoHitsMeansNoPrecedentsFound(t *testing.T) {
	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return []models.PrecedentHit{}, nil
		},
	}
	oracle := &stubOracle{}
	svc := newTestService(store, oracle)

	result, err := svc.Predict(context.Background(), validInput())
	require.ErrorIs(t, err, ErrNoPrecedentsFound)
	assert.Nil(t, result)
	assert.Zero(t, oracle.ScoreCalls(), "an empty shortlist must not reach the analysis stage")
}

func TestPredictRetrievalFailureWrapped(t *testing.T) {
	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(store, &stubOracle{})

	_, err := svc.Predict(context.Background(), validInput())
	require.ErrorIs(t, err, ErrRetrievalFailed)
}

func TestPredictRetrievalTimeout(t *testing.T) {
	store := &stubStore{
		searchFn: func(ctx context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := newTestService(store, &stubOracle{}, WithRetrievalTimeout(10*time.Millisecond))

	_, err := svc.Predict(context.Background(), validInput())
	require.ErrorIs(t, err, ErrStageTimeout)
	assert.NotErrorIs(t, err, ErrRetrievalFailed)
}

func TestPredictCallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &stubStore{
		searchFn: func(ctx context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := newTestService(store, &stubOracle{})

	_, err := svc.Predict(ctx, validInput())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrStageTimeout)
}

func TestSelectCandidates(t *testing.T) {
	tests := []struct {
		name string
		hits []models.PrecedentHit
		want []string
	}{
		{
			name: "deduplicates preserving first occurrence order",
			hits: hitsFor("a", "b", "a", "c", "b", "d"),
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "truncates to five unique precedents",
			hits: hitsFor("a", "b", "c", "d", "e", "f", "g"),
			want: []string{"a", "b", "c", "d", "e"},
		},
		{
			name: "many chunks of one precedent yield one candidate",
			hits: hitsFor("a", "a", "a", "a"),
			want: []string{"a"},
		},
		{
			name: "skips hits with empty precedent id",
			hits: hitsFor("", "a", "", "b"),
			want: []string{"a", "b"},
		},
		{
			name: "no hits",
			hits: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectCandidates(tt.hits, 5))
		})
	}
}

func TestPredictDropsFailedCandidates(t *testing.T) {
	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return hitsFor("a", "b", "c"), nil
		},
		fetchFn: func(_ context.Context, id string, _ *models.CaseInput) (*models.PrecedentCase, error) {
			if id == "b" {
				return nil, errors.New("row vanished")
			}
			return &models.PrecedentCase{ID: id, Company: "Company " + id, FineEUR: 1_000_000}, nil
		},
	}
	svc := newTestService(store, &stubOracle{})

	result, err := svc.Predict(context.Background(), validInput())
	require.NoError(t, err, "one failed fetch must not fail the request")
	require.Len(t, result.SimilarCases, 2)
	for _, c := range result.SimilarCases {
		assert.NotEqual(t, "b", c.ID)
	}
}

func TestPredictAllCandidatesFailedMeansNoPrecedentsFound(t *testing.T) {
	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return hitsFor("a", "b"), nil
		},
		fetchFn: func(_ context.Context, _ string, _ *models.CaseInput) (*models.PrecedentCase, error) {
			return nil, errors.New("row vanished")
		},
	}
	svc := newTestService(store, &stubOracle{})

	_, err := svc.Predict(context.Background(), validInput())
	require.ErrorIs(t, err, ErrNoPrecedentsFound)
}

func TestPredictEndToEnd(t *testing.T) {
	fines := map[string]int64{"a": 1_000_000, "b": 500_000, "c": 10_000_000}
	scores := map[string]int{"a": 90, "b": 40, "c": 70}

	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return hitsFor("a", "b", "c"), nil
		},
		fetchFn: func(_ context.Context, id string, _ *models.CaseInput) (*models.PrecedentCase, error) {
			return &models.PrecedentCase{ID: id, Company: "Company " + id, Violation: "violation " + id, FineEUR: fines[id]}, nil
		},
	}
	oracle := &stubOracle{
		scoreFn: func(_ context.Context, _ *models.CaseInput, p *models.PrecedentCase) (*ScoreResult, error) {
			return &ScoreResult{Similarity: scores[p.ID], Explanation: "matched " + p.ID}, nil
		},
	}
	svc := newTestService(store, oracle)

	result, err := svc.Predict(context.Background(), validInput())
	require.NoError(t, err)
	require.Len(t, result.SimilarCases, 3)

	// Ordered by similarity descending
	assert.Equal(t, "a", result.SimilarCases[0].ID)
	assert.Equal(t, "c", result.SimilarCases[1].ID)
	assert.Equal(t, "b", result.SimilarCases[2].ID)

	assert.Equal(t, int64(4_050_000), result.PredictionResult.PredictedFine)
	assert.False(t, result.PredictionResult.LowConfidence)
}

func TestPredictObservedReportsStageOrder(t *testing.T) {
	store := &stubStore{
		searchFn: func(_ context.Context, _ *models.CaseInput) ([]models.PrecedentHit, error) {
			return hitsFor("a"), nil
		},
	}
	svc := newTestService(store, &stubOracle{})

	var stages []PipelineStage
	_, err := svc.PredictObserved(context.Background(), validInput(), func(stage PipelineStage) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, []PipelineStage{
		StageValidating, StageRetrieving, StageSelecting,
		StageFetchingDetails, StageAnalyzing, StageAggregating, StageDone,
	}, stages)
}

func TestSortSimilarCases(t *testing.T) {
	cases := []models.SimilarCase{
		{ID: "d", Similarity: 70, Fine: 100},
		{ID: "b", Similarity: 90, Fine: 200},
		{ID: "c", Similarity: 70, Fine: 300},
		{ID: "a", Similarity: 70, Fine: 100},
	}

	sortSimilarCases(cases)

	ids := []string{cases[0].ID, cases[1].ID, cases[2].ID, cases[3].ID}
	// similarity desc, then fine desc, then id asc
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}
