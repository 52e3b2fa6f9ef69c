package reflink

import (
	"context"
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

func TestLinkReferencesSelectsDeletionalContext(t *testing.T) {
	content := `{"object": "activités", "agreement_analysis": "accord féminin pluriel avec activités", "confidence": 0.92}`
	linker := New(newTestClient(content), nil)

	refs := []model.LocatedReference{{
		ReferenceText: "aux 1° ou 2° du II",
		Source:        model.SourceDeletional,
		Confidence:    0.98,
		StartOffset:   44,
		EndOffset:     63,
	}}
	output := model.ReconstructorOutput{
		DeletedOrReplacedText:     "incompatible avec celui des activités mentionnées aux 1° ou 2° du II ou au IV.",
		IntermediateAfterStateText: "",
	}

	linked := linker.LinkReferences(context.Background(), refs, output)
	if len(linked) != 1 {
		t.Fatalf("expected 1 linked reference, got %d", len(linked))
	}
	if linked[0].Object != "activités" {
		t.Errorf("expected object 'activités', got %q", linked[0].Object)
	}
	if linked[0].ResolutionQuestion == "" {
		t.Errorf("expected a non-empty resolution question")
	}
	if linked[0].Confidence != 0.92 {
		t.Errorf("expected link confidence 0.92, got %f", linked[0].Confidence)
	}
}

func TestLinkReferencesSkipsEmptyContext(t *testing.T) {
	linker := New(newTestClient(`{"object": "x", "agreement_analysis": "y", "confidence": 0.5}`), nil)

	refs := []model.LocatedReference{{ReferenceText: "au IV", Source: model.SourceDefinitional}}
	output := model.ReconstructorOutput{DeletedOrReplacedText: "texte", IntermediateAfterStateText: "   "}

	linked := linker.LinkReferences(context.Background(), refs, output)
	if len(linked) != 0 {
		t.Fatalf("expected no linked references when context is blank, got %d", len(linked))
	}
}

func TestLinkReferencesIsolatesPerReferenceFailure(t *testing.T) {
	linker := New(newTestClient("not json"), nil)

	refs := []model.LocatedReference{
		{ReferenceText: "au IV", Source: model.SourceDeletional},
		{ReferenceText: "au II", Source: model.SourceDeletional},
	}
	output := model.ReconstructorOutput{DeletedOrReplacedText: "un texte quelconque", IntermediateAfterStateText: ""}

	linked := linker.LinkReferences(context.Background(), refs, output)
	if len(linked) != 0 {
		t.Fatalf("expected both references dropped on unparsable response, got %d", len(linked))
	}
}

func TestLinkReferencesRejectsOutOfRangeConfidence(t *testing.T) {
	content := `{"object": "producteurs", "agreement_analysis": "masculin pluriel", "confidence": 1.5}`
	linker := New(newTestClient(content), nil)

	refs := []model.LocatedReference{{ReferenceText: "au sens du", Source: model.SourceDefinitional}}
	output := model.ReconstructorOutput{IntermediateAfterStateText: "interdit aux producteurs au sens du 11"}

	linked := linker.LinkReferences(context.Background(), refs, output)
	if len(linked) != 0 {
		t.Fatalf("expected out-of-range confidence to be rejected, got %d linked", len(linked))
	}
}
