package decompose

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

func TestParseInstructionFromLLM(t *testing.T) {
	content := `{"operations": [{"operation_type": "REPLACE", "target_text": "anciens mots", "replacement_text": "nouveaux mots", "position_hint": "", "sequence_order": 1, "confidence_score": 0.95}]}`
	d := New(newTestClient(content), nil)

	ops, err := d.ParseInstruction(context.Background(), "les mots « anciens mots » sont remplacés par les mots « nouveaux mots »")
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	if ops[0].OperationType != model.AmendReplace {
		t.Errorf("expected REPLACE, got %s", ops[0].OperationType)
	}
}

func TestParseInstructionFallsBackOnEmptyOperations(t *testing.T) {
	content := `{"operations": []}`
	d := New(newTestClient(content), nil)

	ops, err := d.ParseInstruction(context.Background(), "Les mots « anciens mots » sont remplacés par les mots « nouveaux mots »")
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if len(ops) != 1 || ops[0].OperationType != model.AmendReplace {
		t.Fatalf("expected inferred REPLACE operation, got %+v", ops)
	}
}

func TestParseInstructionFallsBackOnDeleteWording(t *testing.T) {
	content := "not json"
	d := New(newTestClient(content), nil)

	ops, err := d.ParseInstruction(context.Background(), "Le deuxième alinéa est supprimé")
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if len(ops) != 1 || ops[0].OperationType != model.AmendDelete {
		t.Fatalf("expected inferred DELETE operation, got %+v", ops)
	}
}

func TestNormalizeOperationsEncodesAlineaAnchor(t *testing.T) {
	ops := []model.AmendmentOperation{{OperationType: model.AmendRewrite, ReplacementText: "texte", SequenceOrder: 1, ConfidenceScore: 0.9}}
	normalized := normalizeOperations(ops, "Le cinquième alinéa est ainsi rédigé : « texte »")

	if normalized[0].PositionHint == nil {
		t.Fatalf("expected a position hint to be attached")
	}
	if normalized[0].PositionHint.Type != "alinea" {
		t.Errorf("expected alinea type, got %q", normalized[0].PositionHint.Type)
	}
	n, _, ok := normalized[0].PositionHint.AlineaIndexValue()
	if !ok || n != 5 {
		t.Errorf("expected alinea index 5, got n=%d ok=%v", n, ok)
	}
}

func TestNormalizeOperationsDowngradesReplaceToRewriteForFullAlinea(t *testing.T) {
	ops := []model.AmendmentOperation{{OperationType: model.AmendReplace, TargetText: "Le cinquième alinéa", ReplacementText: "texte", SequenceOrder: 1}}
	normalized := normalizeOperations(ops, "Le cinquième alinéa est ainsi rédigé : « texte »")

	if normalized[0].OperationType != model.AmendRewrite {
		t.Errorf("expected downgrade to REWRITE, got %s", normalized[0].OperationType)
	}
	if normalized[0].TargetText != "" {
		t.Errorf("expected target_text cleared, got %q", normalized[0].TargetText)
	}
}

func TestNormalizeOperationsEncodesTokenAnchor(t *testing.T) {
	ops := []model.AmendmentOperation{{OperationType: model.AmendInsert, ReplacementText: "nouveau mot", SequenceOrder: 1}}
	normalized := normalizeOperations(ops, `Après le mot : « existant », il est inséré le mot : « nouveau mot »`)

	if normalized[0].PositionHint == nil || normalized[0].PositionHint.AfterWord != "existant" {
		t.Fatalf("expected after_word anchor, got %+v", normalized[0].PositionHint)
	}
}

func TestRawMessageToString(t *testing.T) {
	quoted, _ := json.Marshal("some hint")
	if got := rawMessageToString(quoted); got != "some hint" {
		t.Errorf("unexpected unmarshal: %q", got)
	}
}
