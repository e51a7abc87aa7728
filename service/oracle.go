package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"finesight-backend/models"

	"github.com/google/generative-ai-go/genai"
)

const (
	oracleModelName   = "gemini-2.5-pro"
	oracleTemperature = 0.1

	// Chunks fed into one similarity prompt. More adds noise, not signal.
	chunksPerPrompt = 5
)

// ErrOracleEmptyResponse is returned when the model produced no usable text
var ErrOracleEmptyResponse = errors.New("oracle returned empty response")

// ScoreResult is a parsed similarity judgment from the oracle
type ScoreResult struct {
	Similarity  int
	Explanation string
}

// ReasoningOracle is the narrow capability contract for the LLM. It is
// non-deterministic and retryable at the call level; the pipeline never lets
// its output alter control flow beyond the per-candidate fallback policy.
type ReasoningOracle interface {
	// Score compares the input case against one precedent and returns a
	// 0-100 similarity with a natural-language justification
	Score(ctx context.Context, input *models.CaseInput, precedent *models.PrecedentCase) (*ScoreResult, error)

	// Narrate synthesizes the aggravating/mitigating rationale text for the
	// weighted evidence. It never influences the numeric prediction.
	Narrate(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase, predictedFine int64) (string, error)
}

// GeminiOracle implements ReasoningOracle on the Gemini API
type GeminiOracle struct {
	client *genai.Client
}

// NewGeminiOracle creates a Gemini-backed reasoning oracle
func NewGeminiOracle(client *genai.Client) *GeminiOracle {
	return &GeminiOracle{client: client}
}

// Score runs the similarity analysis prompt for one precedent
func (o *GeminiOracle) Score(ctx context.Context, input *models.CaseInput, precedent *models.PrecedentCase) (*ScoreResult, error) {
	prompt := buildScorePrompt(input, precedent)

	content, err := o.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseScoreResponse(content)
}

// Narrate runs the fine-rationale prompt over the joined evidence
func (o *GeminiOracle) Narrate(ctx context.Context, input *models.CaseInput, cases []models.SimilarCase, predictedFine int64) (string, error) {
	prompt := buildNarratePrompt(input, cases, predictedFine)

	content, err := o.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(content), nil
}

// generate calls the model with retry and backoff
func (o *GeminiOracle) generate(ctx context.Context, prompt string) (string, error) {
	model := o.client.GenerativeModel(oracleModelName)
	model.SetTemperature(oracleTemperature)

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		content := extractText(resp)
		if content != "" {
			return content, nil
		}
		lastErr = ErrOracleEmptyResponse
	}

	return "", fmt.Errorf("oracle call failed after %d attempts: %w", maxRetries, lastErr)
}

// extractText concatenates the text parts of all candidates
func extractText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
	}
	return builder.String()
}

func buildScorePrompt(input *models.CaseInput, precedent *models.PrecedentCase) string {
	var chunkText strings.Builder
	chunks := precedent.Chunks
	if len(chunks) > chunksPerPrompt {
		chunks = chunks[:chunksPerPrompt]
	}
	for _, chunk := range chunks {
		chunkText.WriteString(chunk.Text)
		chunkText.WriteString("\n\n")
	}
	if chunkText.Len() == 0 {
		chunkText.WriteString(precedent.Summary)
	}

	return fmt.Sprintf(`You are an expert legal analyst specializing in GDPR breach impact assessment.

QUERY CASE:
Description: %s
Classifications:
- Lawfulness of Processing: %s
- Data Subject Rights: %s
- Risk Management: %s
- Accountability: %s

PRECEDENT CASE:
Company: %s
Violation: %s
Summary: %s
Fine: EUR %d
Date: %s
Authority: %s
Classifications:
- Lawfulness of Processing: %s
- Data Subject Rights: %s
- Risk Management: %s
- Accountability: %s

DETAILED CASE CONTENT:
%s

Analyze the similarity between these two cases and provide:
1. A similarity score from 0-100 (100 being identical)
2. A detailed explanation of why they are similar or different

Focus on:
- Type of violation and circumstances
- GDPR articles involved
- Company size and sector similarities
- Regulatory authority approach
- Severity and impact factors

Format your response as:
SIMILARITY_SCORE: [score]
EXPLANATION: [detailed explanation]`,
		input.CaseDescription,
		input.LawfulnessOfProcessing,
		input.DataSubjectRightsCompliance,
		input.RiskManagementAndSafeguards,
		input.AccountabilityAndGovernance,
		precedent.Company,
		precedent.Violation,
		precedent.Summary,
		precedent.FineEUR,
		precedent.Date,
		precedent.Authority,
		orNA(precedent.LawfulnessOfProcessing),
		orNA(precedent.DataSubjectRightsCompliance),
		orNA(precedent.RiskManagementAndSafeguards),
		orNA(precedent.AccountabilityAndGovernance),
		chunkText.String(),
	)
}

func buildNarratePrompt(input *models.CaseInput, cases []models.SimilarCase, predictedFine int64) string {
	var casesSummary strings.Builder
	var analyses strings.Builder
	for i, c := range cases {
		casesSummary.WriteString(fmt.Sprintf("Case %d: %s - EUR %d (Similarity: %d%%)\n", i+1, c.Company, c.Fine, c.Similarity))
		analyses.WriteString(fmt.Sprintf("Case %d (%s): %s\n", i+1, c.Company, c.ExplanationOfSimilarity))
	}

	return fmt.Sprintf(`You are an expert GDPR legal analyst explaining a fine estimate for a data breach.

QUERY CASE:
Description: %s
Classifications:
- Lawfulness of Processing: %s
- Data Subject Rights: %s
- Risk Management: %s
- Accountability: %s

SIMILAR PRECEDENT CASES:
%s
DETAILED CASE ANALYSES:
%s
The predicted fine has already been computed as the similarity-weighted
average of the precedent fines: EUR %d. Do NOT propose a different amount.

Write a concise explanation of why this estimate is reasonable, covering:
1. The weighting of the precedent fines by similarity
2. Specific aggravating or mitigating factors of the query case
3. Relevant authority enforcement patterns seen in the precedents

Respond with the explanation text only, no headers and no markdown.`,
		input.CaseDescription,
		input.LawfulnessOfProcessing,
		input.DataSubjectRightsCompliance,
		input.RiskManagementAndSafeguards,
		input.AccountabilityAndGovernance,
		casesSummary.String(),
		analyses.String(),
		predictedFine,
	)
}

// parseScoreResponse extracts the SIMILARITY_SCORE and EXPLANATION lines.
// A score that fails to parse as an integer falls back to 50; a response
// with neither marker is an error so the caller can retry or substitute a
// fallback assessment.
func parseScoreResponse(content string) (*ScoreResult, error) {
	similarity := -1
	var explanation strings.Builder

	inExplanation := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SIMILARITY_SCORE:"):
			inExplanation = false
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "SIMILARITY_SCORE:"))
			raw = strings.TrimSuffix(raw, "%")
			score, err := strconv.Atoi(raw)
			if err != nil {
				similarity = 50
			} else {
				similarity = score
			}
		case strings.HasPrefix(trimmed, "EXPLANATION:"):
			inExplanation = true
			explanation.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "EXPLANATION:")))
		case inExplanation && trimmed != "":
			explanation.WriteString(" ")
			explanation.WriteString(trimmed)
		}
	}

	if similarity < 0 && explanation.Len() == 0 {
		return nil, fmt.Errorf("unparseable oracle response: %q", truncate(content, 200))
	}
	if similarity < 0 {
		similarity = 50
	}

	return &ScoreResult{
		Similarity:  clampSimilarity(similarity),
		Explanation: explanation.String(),
	}, nil
}

// clampSimilarity bounds a score to [0,100]
func clampSimilarity(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
