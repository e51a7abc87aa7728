package models

import (
	"github.com/google/uuid"
)

// PrecedentCase represents a historical enforcement record from the precedent
// corpus. Records are immutable once fetched; the pipeline holds read-only
// references for the duration of one request.
type PrecedentCase struct {
	ID        string `json:"id"`
	Company   string `json:"company"`
	Violation string `json:"violation"`
	Summary   string `json:"summary"`
	FineEUR   int64  `json:"fine_eur"`
	Date      string `json:"date"`
	Authority string `json:"authority"`

	// Classification labels assigned when the case was indexed. May be empty
	// for older corpus entries.
	LawfulnessOfProcessing      string `json:"lawfulness_of_processing,omitempty"`
	DataSubjectRightsCompliance string `json:"data_subject_rights_compliance,omitempty"`
	RiskManagementAndSafeguards string `json:"risk_management_and_safeguards,omitempty"`
	AccountabilityAndGovernance string `json:"accountability_and_governance,omitempty"`

	// Detail chunks retrieved for fine-grained comparison, best-matching first
	Chunks []CaseChunk `json:"chunks,omitempty"`

	// Storage key of the source decision document, if one was attached
	DocumentKey *string `json:"document_key,omitempty"`
}

// ClassificationLabels returns the stored classification values in the same
// fixed order as CaseInput.ClassificationLabels.
func (p *PrecedentCase) ClassificationLabels() []string {
	return []string{
		p.LawfulnessOfProcessing,
		p.DataSubjectRightsCompliance,
		p.RiskManagementAndSafeguards,
		p.AccountabilityAndGovernance,
	}
}

// CaseChunk is one indexed text fragment of a precedent decision
type CaseChunk struct {
	ID          uuid.UUID `json:"id"`
	PrecedentID string    `json:"precedent_id"`
	Text        string    `json:"text"`
	Page        int       `json:"page"`
	Distance    float64   `json:"distance,omitempty"`
}

// PrecedentHit is one ranked result from the hybrid corpus search. Hits are
// chunk-level: one precedent may appear multiple times with different chunks.
type PrecedentHit struct {
	ChunkID     uuid.UUID `json:"chunk_id"`
	PrecedentID string    `json:"precedent_id"`
	Company     string    `json:"company"`
	Score       float64   `json:"score"`
}
