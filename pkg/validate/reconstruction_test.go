package validate

import (
	"context"
	"testing"
	"time"

	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/ratelimit"
)

type fakeProvider struct{ content string }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.content}, nil
}

func newTestClient(content string) *llm.Client {
	l := ratelimit.New(time.Millisecond, 10*time.Millisecond, 1)
	l.BackoffBase = time.Millisecond
	return llm.NewClient(&fakeProvider{content: content}, l, "test-model", 0.1)
}

func TestValidateLegalCoherenceParsesResponse(t *testing.T) {
	content := `{"validation_status": "VALID", "critical_errors": [], "major_errors": [], "minor_errors": [], "suggestions": [], "overall_score": 0.95, "validation_summary": "coherent"}`
	v := NewReconstructionValidator(newTestClient(content), nil)

	result := v.ValidateLegalCoherence(context.Background(), "texte original", "texte modifié", nil)
	if result.ValidationStatus != "VALID" {
		t.Errorf("expected VALID, got %s", result.ValidationStatus)
	}
	if result.OverallScore != 0.95 {
		t.Errorf("expected score 0.95, got %f", result.OverallScore)
	}
}

func TestValidateLegalCoherenceCoercesScalarErrorLists(t *testing.T) {
	content := `{"validation_status": "WARNINGS", "critical_errors": [], "major_errors": "un seul problème", "minor_errors": [], "suggestions": [], "overall_score": 0.6, "validation_summary": "à revoir"}`
	v := NewReconstructionValidator(newTestClient(content), nil)

	result := v.ValidateLegalCoherence(context.Background(), "a", "b", nil)
	if len(result.MajorErrors) != 1 || result.MajorErrors[0] != "un seul problème" {
		t.Fatalf("expected scalar major_errors coerced to one-element list, got %v", result.MajorErrors)
	}
}

func TestValidateLegalCoherenceInvalidJSONReturnsErrors(t *testing.T) {
	v := NewReconstructionValidator(newTestClient("not json"), nil)

	result := v.ValidateLegalCoherence(context.Background(), "a", "b", nil)
	if result.ValidationStatus != "ERRORS" {
		t.Errorf("expected ERRORS status on unparsable response, got %s", result.ValidationStatus)
	}
	if result.OverallScore != 0.0 {
		t.Errorf("expected score 0, got %f", result.OverallScore)
	}
}
