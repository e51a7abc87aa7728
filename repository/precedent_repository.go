package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finesight-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPrecedentNotFound is returned when a precedent id has no corpus row
var ErrPrecedentNotFound = errors.New("precedent not found")

// PrecedentRepository handles database operations for the precedent corpus
type PrecedentRepository struct {
	db *pgxpool.Pool
}

// NewPrecedentRepository creates a new precedent repository
func NewPrecedentRepository(db *pgxpool.Pool) *PrecedentRepository {
	return &PrecedentRepository{db: db}
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// HybridSearch performs a combined lexical + vector search over the summary
// chunks of the precedent corpus and returns ranked chunk-level hits.
// embedding: query embedding vector (768 dimensions)
// queryText: raw query text for the lexical leg
// limit: maximum number of hits to return
func (r *PrecedentRepository) HybridSearch(
	ctx context.Context,
	embedding []float64,
	queryText string,
	limit int,
) ([]models.PrecedentHit, error) {
	if len(embedding) != 768 {
		return nil, fmt.Errorf("embedding must be 768 dimensions, got %d", len(embedding))
	}

	vectorStr := formatVector(embedding)

	// Hybrid score: cosine similarity blended with normalized ts_rank.
	// Chunks without a lexical match still rank on the vector leg alone.
	query := `
		SELECT
			c.id,
			c.precedent_id,
			p.company,
			(1 - (c.embedding <=> $1::vector)) * 0.7
				+ COALESCE(ts_rank(c.search_tsv, plainto_tsquery('english', $2)), 0) * 0.3
				AS score
		FROM precedent_chunks c
		JOIN precedents p ON p.id = c.precedent_id
		WHERE c.kind = 'summary'
		ORDER BY score DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, vectorStr, queryText, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query precedent chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.PrecedentHit
	for rows.Next() {
		var hit models.PrecedentHit
		err := rows.Scan(
			&hit.ChunkID,
			&hit.PrecedentID,
			&hit.Company,
			&hit.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan precedent hit: %w", err)
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating precedent hits: %w", err)
	}

	return hits, nil
}

// GetByID retrieves the full precedent record without detail chunks
func (r *PrecedentRepository) GetByID(ctx context.Context, id string) (*models.PrecedentCase, error) {
	p := &models.PrecedentCase{}
	query := `
		SELECT id, company, violation, summary, fine_eur, COALESCE(decision_date, ''), COALESCE(authority, ''),
			COALESCE(lawfulness_of_processing, ''),
			COALESCE(data_subject_rights_compliance, ''),
			COALESCE(risk_management_and_safeguards, ''),
			COALESCE(accountability_and_governance, ''),
			document_key
		FROM precedents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Company,
		&p.Violation,
		&p.Summary,
		&p.FineEUR,
		&p.Date,
		&p.Authority,
		&p.LawfulnessOfProcessing,
		&p.DataSubjectRightsCompliance,
		&p.RiskManagementAndSafeguards,
		&p.AccountabilityAndGovernance,
		&p.DocumentKey,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrecedentNotFound
		}
		return nil, fmt.Errorf("failed to query precedent %s: %w", id, err)
	}

	return p, nil
}

// GetDetailChunks retrieves the detail chunks of one precedent ranked by
// vector distance to the query embedding, best-matching first.
func (r *PrecedentRepository) GetDetailChunks(
	ctx context.Context,
	precedentID string,
	embedding []float64,
	limit int,
) ([]models.CaseChunk, error) {
	if len(embedding) != 768 {
		return nil, fmt.Errorf("embedding must be 768 dimensions, got %d", len(embedding))
	}

	vectorStr := formatVector(embedding)

	query := `
		SELECT id, precedent_id, chunk_text, COALESCE(page, 0), embedding <=> $1::vector AS distance
		FROM precedent_chunks
		WHERE precedent_id = $2 AND kind = 'detail'
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, vectorStr, precedentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.CaseChunk
	for rows.Next() {
		var chunk models.CaseChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.PrecedentID,
			&chunk.Text,
			&chunk.Page,
			&chunk.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detail chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detail chunks: %w", err)
	}

	return chunks, nil
}

// UpdateDocumentKey records the storage key of the source decision document
func (r *PrecedentRepository) UpdateDocumentKey(ctx context.Context, id string, key string) error {
	query := `UPDATE precedents SET document_key = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, key)
	if err != nil {
		return fmt.Errorf("failed to update document key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecedentNotFound
	}
	return nil
}
