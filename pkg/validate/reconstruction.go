package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

// anyStringList unmarshals either a JSON array of strings or a single
// scalar value as a one-element list, mirroring the original's
// "ensure error lists are actually lists" defensive parsing.
type anyStringList []string

func (a *anyStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}
	var single any
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single == nil {
		*a = nil
		return nil
	}
	*a = []string{fmt.Sprintf("%v", single)}
	return nil
}

const reconstructionComponent = "result_validator"

const reconstructionSystemPrompt = `Vous validez la reconstruction d'un texte juridique français après application d'opérations d'amendement. Évaluez la cohérence juridique, la structure hiérarchique, la complétude des opérations appliquées, le formatage et la grammaire. Répondez en JSON avec "validation_status" ("VALID", "WARNINGS", ou "ERRORS"), "critical_errors" (liste), "major_errors" (liste), "minor_errors" (liste), "suggestions" (liste), "overall_score" (0 à 1), et "validation_summary" (chaîne).`

// CoherenceResult is the outcome of validating a reconstructed legal
// text's coherence, grounded on the original's ValidationResult
// dataclass.
type CoherenceResult struct {
	ValidationStatus   string   `json:"validation_status"`
	CriticalErrors     []string `json:"critical_errors"`
	MajorErrors        []string `json:"major_errors"`
	MinorErrors        []string `json:"minor_errors"`
	Suggestions        []string `json:"suggestions"`
	OverallScore       float64  `json:"overall_score"`
	ValidationSummary  string   `json:"validation_summary"`
}

// ReconstructionValidator validates that applying a set of amendment
// operations to an article's original text produced a legally coherent
// result (spec.md §3.6). It mirrors the original's ResultValidator:
// LLM-based analysis, cached by (original_text, modified_text,
// operations), with a conservative ERRORS/score-0 fallback when the LLM
// call or its response is unusable.
type ReconstructionValidator struct {
	client *llm.Client
	cache  *cache.Cache
}

// NewReconstructionValidator creates a ReconstructionValidator. cache
// may be nil to disable caching.
func NewReconstructionValidator(client *llm.Client, c *cache.Cache) *ReconstructionValidator {
	return &ReconstructionValidator{client: client, cache: c}
}

type reconstructionCacheKey struct {
	OriginalText string                `json:"original_text"`
	ModifiedText string                `json:"modified_text"`
	Operations   []operationCacheEntry `json:"operations"`
}

type operationCacheEntry struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Replacement string `json:"replacement"`
	Position    string `json:"position"`
}

func reconstructionKey(originalText, modifiedText string, operations []model.AmendmentOperation) reconstructionCacheKey {
	entries := make([]operationCacheEntry, 0, len(operations))
	for _, op := range operations {
		entries = append(entries, operationCacheEntry{
			Type:        string(op.OperationType),
			Target:      op.TargetText,
			Replacement: op.ReplacementText,
			Position:    op.PositionHintRaw,
		})
	}
	return reconstructionCacheKey{OriginalText: originalText, ModifiedText: modifiedText, Operations: entries}
}

// ValidateLegalCoherence runs LLM-based coherence validation over a
// reconstructed article.
func (v *ReconstructionValidator) ValidateLegalCoherence(ctx context.Context, originalText, modifiedText string, operations []model.AmendmentOperation) *CoherenceResult {
	key := reconstructionKey(originalText, modifiedText, operations)

	if v.cache != nil {
		var cached CoherenceResult
		if hit, err := v.cache.Get(reconstructionComponent, key, &cached); err == nil && hit {
			return &cached
		}
	}

	userPrompt := buildReconstructionUserPrompt(originalText, modifiedText, operations)
	resp, err := v.client.CallMessages(ctx, reconstructionComponent, []llm.Message{
		{Role: "system", Content: reconstructionSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, true)
	if err != nil {
		return &CoherenceResult{
			ValidationStatus:  "ERRORS",
			CriticalErrors:    []string{fmt.Sprintf("validation failed: %v", err)},
			OverallScore:      0.0,
			ValidationSummary: "critical validation failure",
		}
	}

	result, parseErr := parseCoherenceResponse(resp.Content)
	if parseErr != nil {
		return &CoherenceResult{
			ValidationStatus:  "ERRORS",
			CriticalErrors:    []string{fmt.Sprintf("validation system error: %v", parseErr)},
			OverallScore:      0.0,
			ValidationSummary: "validation failed due to system error",
		}
	}

	if v.cache != nil {
		_ = v.cache.Set(reconstructionComponent, key, result)
	}
	return result
}

func buildReconstructionUserPrompt(originalText, modifiedText string, operations []model.AmendmentOperation) string {
	var summary strings.Builder
	for i, op := range operations {
		fmt.Fprintf(&summary, "- %d. %s: %s", i+1, op.OperationType, op.PositionHintRaw)
		if op.TargetText != "" {
			fmt.Fprintf(&summary, " | Target: %s", op.TargetText)
		}
		if op.ReplacementText != "" {
			fmt.Fprintf(&summary, " | Replacement: %s", op.ReplacementText)
		}
		summary.WriteString("\n")
	}
	return fmt.Sprintf("Texte original:\n%s\n\nTexte modifié:\n%s\n\nOpérations appliquées:\n%s", originalText, modifiedText, summary.String())
}

type rawCoherenceResponse struct {
	ValidationStatus  *string      `json:"validation_status"`
	CriticalErrors    anyStringList `json:"critical_errors"`
	MajorErrors       anyStringList `json:"major_errors"`
	MinorErrors       anyStringList `json:"minor_errors"`
	Suggestions       anyStringList `json:"suggestions"`
	OverallScore      *float64      `json:"overall_score"`
	ValidationSummary *string      `json:"validation_summary"`
}

func parseCoherenceResponse(content string) (*CoherenceResult, error) {
	var raw rawCoherenceResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}
	if raw.ValidationStatus == nil || raw.OverallScore == nil || raw.ValidationSummary == nil {
		return nil, fmt.Errorf("response missing a required field")
	}

	status := *raw.ValidationStatus
	switch status {
	case "VALID", "WARNINGS", "ERRORS":
	default:
		status = "ERRORS"
	}

	score := *raw.OverallScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &CoherenceResult{
		ValidationStatus:  status,
		CriticalErrors:    []string(raw.CriticalErrors),
		MajorErrors:       []string(raw.MajorErrors),
		MinorErrors:       []string(raw.MinorErrors),
		Suggestions:       []string(raw.Suggestions),
		OverallScore:      score,
		ValidationSummary: *raw.ValidationSummary,
	}, nil
}
