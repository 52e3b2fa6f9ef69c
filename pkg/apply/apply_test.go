package apply

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/ratelimit"
)

type fakeProvider struct{ content string }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.content}, nil
}

func newTestClient(content string) *llm.Client {
	l := ratelimit.New(time.Millisecond, 10*time.Millisecond, 1)
	l.BackoffBase = time.Millisecond
	return llm.NewClient(&fakeProvider{content: content}, l, "test-model", 0.0)
}

func alineaHint(n int) string {
	b, _ := json.Marshal(model.PositionHint{Type: "alinea", AlineaIndex: rawInt(n)})
	return string(b)
}

func rawInt(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}

func TestApplyAlineaRewriteDeterministic(t *testing.T) {
	original := "Premier alinéa.\n\nDeuxième alinéa.\n\nTroisième alinéa."
	op := model.AmendmentOperation{
		OperationType:   model.AmendRewrite,
		ReplacementText: "Nouveau deuxième alinéa.",
		PositionHintRaw: alineaHint(2),
	}
	op.PositionHint = &model.PositionHint{Type: "alinea", AlineaIndex: rawInt(2)}

	a := New(newTestClient("should not be called"), nil)
	result := a.ApplySingleOperation(context.Background(), original, op)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.ErrorMessage)
	}
	if result.ModifiedText != "Premier alinéa.\n\nNouveau deuxième alinéa.\n\nTroisième alinéa." {
		t.Errorf("unexpected modified text: %q", result.ModifiedText)
	}
}

func TestApplyFullAlineaTargetDowngradesToRewrite(t *testing.T) {
	original := "Premier alinéa.\n\nDeuxième alinéa.\n\nTroisième alinéa."
	op := model.AmendmentOperation{
		OperationType:   model.AmendReplace,
		TargetText:      "Le troisième alinéa",
		ReplacementText: "Texte remplacé.",
		PositionHint:    &model.PositionHint{Type: "alinea", AlineaIndex: rawInt(3)},
	}

	a := New(newTestClient("should not be called"), nil)
	result := a.ApplySingleOperation(context.Background(), original, op)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.ErrorMessage)
	}
	if result.ModifiedText != "Premier alinéa.\n\nDeuxième alinéa.\n\nTexte remplacé." {
		t.Errorf("unexpected modified text: %q", result.ModifiedText)
	}
}

func TestApplyScopedSectionPointReplace(t *testing.T) {
	original := "I.- Alpha.\n\nII.- Un texte avec 1° un premier point et 2° un second point prévu ici."
	op := model.AmendmentOperation{
		OperationType:   model.AmendReplace,
		TargetText:      "second point prévu ici",
		ReplacementText: "second point corrigé",
		PositionHint:    &model.PositionHint{Type: "structure", Section: "II", Point: "2"},
	}

	a := New(newTestClient("should not be called"), nil)
	result := a.ApplySingleOperation(context.Background(), original, op)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.ErrorMessage)
	}
	if !contains(result.ModifiedText, "second point corrigé") {
		t.Errorf("expected replacement applied, got %q", result.ModifiedText)
	}
	if !contains(result.ModifiedText, "premier point") {
		t.Errorf("expected the rest of the text preserved, got %q", result.ModifiedText)
	}
}

func TestApplyIdempotentReplaceAlreadyPresent(t *testing.T) {
	original := "Le texte contient déjà la formule recherchée."
	op := model.AmendmentOperation{
		OperationType:   model.AmendReplace,
		TargetText:      "une formule absente",
		ReplacementText: "la formule recherchée",
	}

	a := New(newTestClient("should not be called"), nil)
	result := a.ApplySingleOperation(context.Background(), original, op)

	if !result.Success {
		t.Fatalf("expected idempotent success, got error: %s", result.ErrorMessage)
	}
	if result.ModifiedText != original {
		t.Errorf("expected text left unchanged, got %q", result.ModifiedText)
	}
}

func TestApplyFallsBackToLLMForUnstructuredOperation(t *testing.T) {
	content := `{"success": true, "modified_text": "texte modifié complet", "applied_fragment": "fragment", "confidence": 0.8}`
	a := New(newTestClient(content), nil)

	op := model.AmendmentOperation{
		OperationType:   model.AmendAdd,
		ReplacementText: "une phrase ajoutée",
	}
	result := a.ApplySingleOperation(context.Background(), "texte original", op)

	if !result.Success {
		t.Fatalf("expected success from LLM path, got error: %s", result.ErrorMessage)
	}
	if result.ModifiedText != "texte modifié complet" {
		t.Errorf("unexpected modified text: %q", result.ModifiedText)
	}
}

func TestApplyReplaceTargetNotFoundFails(t *testing.T) {
	a := New(newTestClient("not relevant"), nil)
	op := model.AmendmentOperation{
		OperationType:   model.AmendReplace,
		TargetText:      "texte absent du document original ici",
		ReplacementText: "remplacement",
	}
	result := a.ApplySingleOperation(context.Background(), "un texte complètement différent sans rapport", op)

	if result.Success {
		t.Fatalf("expected failure for missing target text")
	}
}

func TestNormalizeForMatchCollapsesWhitespaceAndQuotes(t *testing.T) {
	normalized, indexMap := normalizeForMatch("  «Texte»  avec   espaces  ")
	if normalized != `"texte" avec espaces` {
		t.Errorf("unexpected normalization: %q", normalized)
	}
	if len(indexMap) != len([]rune(normalized)) {
		t.Errorf("index map length mismatch: %d vs %d", len(indexMap), len([]rune(normalized)))
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
