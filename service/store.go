package service

import (
	"context"
	"fmt"
	"log"

	"finesight-backend/models"
	"finesight-backend/repository"
)

const (
	searchCandidateLimit = 50
	detailChunkLimit     = 10
)

// PrecedentStore is the narrow retrieval contract the pipeline depends on.
// The production implementation searches the pgvector-backed corpus; tests
// substitute in-memory fakes.
type PrecedentStore interface {
	// Search returns up to 50 ranked chunk-level hits for the enriched query
	Search(ctx context.Context, input *models.CaseInput) ([]models.PrecedentHit, error)

	// FetchDetail returns the full precedent record with its best-matching
	// detail chunks for fine-grained comparison
	FetchDetail(ctx context.Context, precedentID string, input *models.CaseInput) (*models.PrecedentCase, error)
}

// PgPrecedentStore implements PrecedentStore on Postgres + pgvector
type PgPrecedentStore struct {
	repo     *repository.PrecedentRepository
	embedder *EmbeddingClient
}

// NewPgPrecedentStore creates a precedent store over the given repository
func NewPgPrecedentStore(repo *repository.PrecedentRepository, embedder *EmbeddingClient) *PgPrecedentStore {
	return &PgPrecedentStore{repo: repo, embedder: embedder}
}

// buildSearchQuery enriches the case description with the classification
// labels so the categorical risk context participates in ranking, not just
// the free text.
func buildSearchQuery(input *models.CaseInput) string {
	return fmt.Sprintf(
		"Case Description: %s\nLawfulness of Processing: %s\nData Subject Rights: %s\nRisk Management: %s\nAccountability: %s",
		input.CaseDescription,
		input.LawfulnessOfProcessing,
		input.DataSubjectRightsCompliance,
		input.RiskManagementAndSafeguards,
		input.AccountabilityAndGovernance,
	)
}

// Search embeds the enriched query and runs the hybrid corpus search
func (s *PgPrecedentStore) Search(ctx context.Context, input *models.CaseInput) ([]models.PrecedentHit, error) {
	queryText := buildSearchQuery(input)

	embedding, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := s.repo.HybridSearch(ctx, embedding, queryText, searchCandidateLimit)
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// FetchDetail loads the full precedent row plus the detail chunks closest to
// the input case description.
func (s *PgPrecedentStore) FetchDetail(ctx context.Context, precedentID string, input *models.CaseInput) (*models.PrecedentCase, error) {
	precedent, err := s.repo.GetByID(ctx, precedentID)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.EmbedQuery(ctx, input.CaseDescription)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The summary row alone still supports a coarse comparison
		log.Printf("Warning: Failed to embed detail query for %s: %v. Continuing with summary only.", precedentID, err)
		return precedent, nil
	}

	chunks, err := s.repo.GetDetailChunks(ctx, precedentID, embedding, detailChunkLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("Warning: Failed to retrieve detail chunks for %s: %v. Continuing with summary only.", precedentID, err)
		return precedent, nil
	}
	precedent.Chunks = chunks

	return precedent, nil
}
