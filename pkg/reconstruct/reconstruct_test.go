package reconstruct

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coolbeans/regula/pkg/apply"
	"github.com/coolbeans/regula/pkg/decompose"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/ratelimit"
	"github.com/coolbeans/regula/pkg/validate"
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

func TestReconstructAmendmentSucceeds(t *testing.T) {
	decomposerContent := `{"operations": [{"operation_type": "REPLACE", "target_text": "test", "replacement_text": "nouveau test", "position_hint": "", "sequence_order": 1, "confidence_score": 0.9}]}`
	applierContent := `{"success": true, "modified_text": "Art. L. 254-1. Ceci est un nouveau test pour validation.", "applied_fragment": "nouveau test", "confidence": 0.9}`
	validatorContent := `{"validation_status": "VALID", "critical_errors": [], "major_errors": [], "minor_errors": [], "suggestions": [], "overall_score": 0.95, "validation_summary": "coherent"}`

	decomposer := decompose.New(newTestClient(decomposerContent), nil)
	applier := apply.New(newTestClient(applierContent), nil)
	validator := validate.NewReconstructionValidator(newTestClient(validatorContent), nil)

	logPath := filepath.Join(t.TempDir(), "reconstruction_log.txt")
	r := New(decomposer, applier, validator, logPath, nil)

	result := r.ReconstructAmendment(
		context.Background(),
		"Art. L. 254-1. Ceci est un test pour validation.",
		"les mots : « test » sont remplacés par les mots : « nouveau test »",
		"L. 254-1",
		"chunk-1",
	)

	if !result.Success {
		t.Fatalf("expected success, got failures: %+v, warnings: %v", result.OperationsFailed, result.ValidationWarnings)
	}
	if result.FinalText != "Art. L. 254-1. Ceci est un nouveau test pour validation." {
		t.Errorf("unexpected final text: %q", result.FinalText)
	}
	if len(result.OperationsApplied) != 1 {
		t.Errorf("expected 1 applied operation, got %d", len(result.OperationsApplied))
	}

	logBytes, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	logContent := string(logBytes)
	if !strings.Contains(logContent, "RECONSTRUCTION ENTRY") {
		t.Errorf("expected log entry header in audit log, got: %s", logContent)
	}
	if !strings.Contains(logContent, "TARGET ARTICLE: L. 254-1") {
		t.Errorf("expected target article in audit log")
	}
}

func TestReconstructAmendmentNoOperationsFails(t *testing.T) {
	decomposer := decompose.New(newTestClient("not json"), nil)
	applier := apply.New(newTestClient(""), nil)
	validator := validate.NewReconstructionValidator(newTestClient(""), nil)

	r := New(decomposer, applier, validator, "", nil)

	result := r.ReconstructAmendment(context.Background(), "texte original", "une instruction qui ne contient aucune opération reconnaissable", "L. 1", "chunk-2")

	if result.Success {
		t.Fatalf("expected failure when no operations can be extracted")
	}
	if result.FinalText != "texte original" {
		t.Errorf("expected unchanged text on failure, got %q", result.FinalText)
	}
}

func TestReconstructAmendmentIsolatesOperationFailure(t *testing.T) {
	decomposerContent := `{"operations": [{"operation_type": "REPLACE", "target_text": "absent", "replacement_text": "remplacement", "position_hint": "", "sequence_order": 1, "confidence_score": 0.9}]}`
	validatorContent := `{"validation_status": "WARNINGS", "critical_errors": [], "major_errors": [], "minor_errors": ["opération non appliquée"], "suggestions": [], "overall_score": 0.8, "validation_summary": "incomplet"}`

	decomposer := decompose.New(newTestClient(decomposerContent), nil)
	applier := apply.New(newTestClient(""), nil)
	validator := validate.NewReconstructionValidator(newTestClient(validatorContent), nil)

	r := New(decomposer, applier, validator, "", nil)

	result := r.ReconstructAmendment(context.Background(), "Le texte ne contient pas la cible.", "les mots : « absent » sont remplacés par les mots : « remplacement »", "L. 2", "chunk-3")

	if result.Success {
		t.Fatalf("expected failure since the operation could not be applied")
	}
	if len(result.OperationsFailed) != 1 {
		t.Fatalf("expected 1 failed operation, got %d", len(result.OperationsFailed))
	}
	if result.FinalText != "Le texte ne contient pas la cible." {
		t.Errorf("expected original text preserved after failed operation, got %q", result.FinalText)
	}
}

func TestReconstructAmendmentHandlesInsertWithEmptyOriginal(t *testing.T) {
	decomposerContent := `{"operations": [{"operation_type": "ADD", "target_text": "", "replacement_text": "Art. L. 9-1. Nouvel article.", "position_hint": "", "sequence_order": 1, "confidence_score": 0.9}]}`
	applierContent := `{"success": true, "modified_text": "Art. L. 9-1. Nouvel article.", "applied_fragment": "Art. L. 9-1. Nouvel article.", "confidence": 0.9}`
	validatorContent := `{"validation_status": "VALID", "critical_errors": [], "major_errors": [], "minor_errors": [], "suggestions": [], "overall_score": 0.9, "validation_summary": "ok"}`

	decomposer := decompose.New(newTestClient(decomposerContent), nil)
	applier := apply.New(newTestClient(applierContent), nil)
	validator := validate.NewReconstructionValidator(newTestClient(validatorContent), nil)

	r := New(decomposer, applier, validator, "", nil)

	result := r.ReconstructAmendment(context.Background(), "   ", "il est ajouté un article L. 9-1 ainsi rédigé", "L. 9-1", "chunk-4")

	if !result.Success {
		t.Fatalf("expected success for INSERT operation, got: %+v", result.OperationsFailed)
	}
	if result.OriginalTextLength != 0 {
		t.Errorf("expected original text treated as empty for INSERT, got length %d", result.OriginalTextLength)
	}
}
