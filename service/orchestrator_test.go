package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finesight-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle is a configurable ReasoningOracle for tests
type stubOracle struct {
	mu           sync.Mutex
	scoreCalls   int
	narrateCalls int

	scoreFn   func(ctx context.Context, input *models.CaseInput, precedent *models.PrecedentCase) (*ScoreResult, error)
	narrateFn func(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase, predictedFine int64) (string, error)
}

func (s *stubOracle) Score(ctx context.Context, input *models.CaseInput, precedent *models.PrecedentCase) (*ScoreResult, error) {
	s.mu.Lock()
	s.scoreCalls++
	s.mu.Unlock()
	if s.scoreFn != nil {
		return s.scoreFn(ctx, input, precedent)
	}
	return &ScoreResult{Similarity: 50, Explanation: "stub"}, nil
}

func (s *stubOracle) Narrate(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase, predictedFine int64) (string, error) {
	s.mu.Lock()
	s.narrateCalls++
	s.mu.Unlock()
	if s.narrateFn != nil {
		return s.narrateFn(ctx, input, cases, predictedFine)
	}
	return "stub rationale", nil
}

func (s *stubOracle) ScoreCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreCalls
}

func validInput() *models.CaseInput {
	return &models.CaseInput{
		CaseDescription:             "Unsecured customer database exposed on the public internet",
		LawfulnessOfProcessing:      models.NoValidBasis,
		DataSubjectRightsCompliance: models.RightsNonCompliance,
		RiskManagementAndSafeguards: models.RiskInsufficientProtection,
		AccountabilityAndGovernance: models.NotAccountable,
	}
}

func testPrecedents(n int) []*models.PrecedentCase {
	ids := []string{"ES-AEPD-2021-042", "FR-CNIL-2020-011", "IE-DPC-2022-003", "DE-BfDI-2019-027", "IT-GPDP-2023-008"}
	precedents := make([]*models.PrecedentCase, 0, n)
	for i := 0; i < n; i++ {
		precedents = append(precedents, &models.PrecedentCase{
			ID:      ids[i%len(ids)],
			Company: "Company " + ids[i%len(ids)],
			FineEUR: int64((i + 1) * 100_000),
		})
	}
	return precedents
}

func TestAnalyzePreservesCountAndOrder(t *testing.T) {
	oracle := &stubOracle{
		scoreFn: func(_ context.Context, _ *models.CaseInput, p *models.PrecedentCase) (*ScoreResult, error) {
			return &ScoreResult{Similarity: len(p.ID), Explanation: "matched on " + p.ID}, nil
		},
	}
	orchestrator := NewAnalysisOrchestrator(oracle)
	precedents := testPrecedents(5)

	assessments, err := orchestrator.Analyze(context.Background(), validInput(), precedents)
	require.NoError(t, err)
	require.Len(t, assessments, 5)

	for i, a := range assessments {
		assert.Equal(t, precedents[i].ID, a.PrecedentID, "assessment %d must belong to precedent %d", i, i)
		assert.False(t, a.Fallback)
	}
}

func TestAnalyzeSubstitutesFallbackForFailedWorker(t *testing.T) {
	failingID := "IE-DPC-2022-003"
	oracle := &stubOracle{
		scoreFn: func(_ context.Context, _ *models.CaseInput, p *models.PrecedentCase) (*ScoreResult, error) {
			if p.ID == failingID {
				return nil, errors.New("model overloaded")
			}
			return &ScoreResult{Similarity: 80, Explanation: "close match"}, nil
		},
	}
	orchestrator := NewAnalysisOrchestrator(oracle)
	precedents := testPrecedents(5)

	assessments, err := orchestrator.Analyze(context.Background(), validInput(), precedents)
	require.NoError(t, err)
	require.Len(t, assessments, 5, "a failed worker must not shrink the result")

	var fallbacks int
	for _, a := range assessments {
		if a.Fallback {
			fallbacks++
			assert.Equal(t, failingID, a.PrecedentID)
			assert.Equal(t, fallbackSimilarity, a.Similarity, "fallback score must be the low sentinel")
			assert.NotEmpty(t, a.Explanation)
		} else {
			assert.Equal(t, 80, a.Similarity)
		}
	}
	assert.Equal(t, 1, fallbacks)
}

func TestAnalyzeTimedOutWorkerFallsBack(t *testing.T) {
	oracle := &stubOracle{
		scoreFn: func(ctx context.Context, _ *models.CaseInput, _ *models.PrecedentCase) (*ScoreResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	orchestrator := NewAnalysisOrchestrator(oracle, WithWorkerTimeout(10*time.Millisecond))
	precedents := testPrecedents(2)

	assessments, err := orchestrator.Analyze(context.Background(), validInput(), precedents)
	require.NoError(t, err, "worker timeouts must not fail the batch")
	require.Len(t, assessments, 2)

	for _, a := range assessments {
		assert.True(t, a.Fallback)
		assert.Equal(t, fallbackSimilarity, a.Similarity)
	}
}

func TestAnalyzeClampsSimilarity(t *testing.T) {
	scores := map[string]int{
		"ES-AEPD-2021-042": 150,
		"FR-CNIL-2020-011": -20,
		"IE-DPC-2022-003":  100,
	}
	oracle := &stubOracle{
		scoreFn: func(_ context.Context, _ *models.CaseInput, p *models.PrecedentCase) (*ScoreResult, error) {
			return &ScoreResult{Similarity: scores[p.ID], Explanation: "x"}, nil
		},
	}
	orchestrator := NewAnalysisOrchestrator(oracle)

	assessments, err := orchestrator.Analyze(context.Background(), validInput(), testPrecedents(3))
	require.NoError(t, err)

	assert.Equal(t, 100, assessments[0].Similarity)
	assert.Equal(t, 0, assessments[1].Similarity)
	assert.Equal(t, 100, assessments[2].Similarity)
}

func TestAnalyzeCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := &stubOracle{}
	orchestrator := NewAnalysisOrchestrator(oracle)

	assessments, err := orchestrator.Analyze(ctx, validInput(), testPrecedents(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, assessments)
}

func TestFallbackAssessmentMentionsClassificationOverlap(t *testing.T) {
	input := validInput()

	precedent := &models.PrecedentCase{
		ID:                          "ES-AEPD-2021-042",
		LawfulnessOfProcessing:      string(models.NoValidBasis),
		DataSubjectRightsCompliance: string(models.RightsNonCompliance),
		RiskManagementAndSafeguards: string(models.RiskProactiveSafeguards),
		AccountabilityAndGovernance: string(models.FullyAccountable),
	}

	a := fallbackAssessment(input, precedent)
	assert.True(t, a.Fallback)
	assert.Equal(t, fallbackSimilarity, a.Similarity)
	assert.Contains(t, a.Explanation, "two of 4")

	// Unclassified precedent: no overlap sentence at all
	bare := fallbackAssessment(input, &models.PrecedentCase{ID: "FR-CNIL-2020-011"})
	assert.Equal(t, fallbackExplanation, bare.Explanation)
}
