package refresolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coolbeans/regula/pkg/corpus"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/ratelimit"
)

type fakeProvider struct {
	responses []string
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.calls >= len(f.responses) {
		return &llm.ChatResponse{Content: f.responses[len(f.responses)-1]}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return &llm.ChatResponse{Content: resp}, nil
}

func newTestClient(responses ...string) *llm.Client {
	l := ratelimit.New(time.Millisecond, 10*time.Millisecond, 1)
	l.BackoffBase = time.Millisecond
	return llm.NewClient(&fakeProvider{responses: responses}, l, "test-model", 0.0)
}

func TestResolveDeletionalReferenceUsesOriginalText(t *testing.T) {
	client := newTestClient(`{"extracted_answer": "les substances actives mentionnées au I"}`)
	resolver := New(client, nil, nil, "")

	refs := []model.LinkedReference{{
		LocatedReference: model.LocatedReference{
			ReferenceText: "aux 1° ou 2° du II",
			Source:        model.SourceDeletional,
		},
		Object:             "activités",
		ResolutionQuestion: "Que définissait « aux 1° ou 2° du II » concernant activités ?",
	}}

	result := resolver.ResolveReferences(context.Background(), refs, "texte original de l'article", nil)
	if len(result.ResolvedDeletional) != 1 {
		t.Fatalf("expected 1 resolved deletional reference, got %d (unresolved=%d)", len(result.ResolvedDeletional), len(result.Unresolved))
	}
	if result.ResolvedDeletional[0].RetrievalMetadata.Source != "original_article_text" {
		t.Errorf("expected source original_article_text, got %q", result.ResolvedDeletional[0].RetrievalMetadata.Source)
	}
}

func TestResolveDefinitionalReferenceFetchesViaCorpus(t *testing.T) {
	dir := t.TempDir()
	codeDir := filepath.Join(dir, "code_rural_peche_maritime")
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(codeDir, "L253-5.txt"), []byte("Le texte de l'article L. 253-5 en vigueur."), 0o644); err != nil {
		t.Fatal(err)
	}
	retriever := corpus.New(dir, nil, nil, nil)

	client := newTestClient(
		`{"code": "code rural et de la pêche maritime", "article": "L. 253-5"}`,
		`{"extracted_answer": "le texte en vigueur"}`,
	)
	resolver := New(client, nil, retriever, "")

	refs := []model.LinkedReference{{
		LocatedReference: model.LocatedReference{
			ReferenceText: "à l'article L. 253-5 du présent code",
			Source:        model.SourceDefinitional,
		},
		Object:             "substances",
		ResolutionQuestion: "Que définit « à l'article L. 253-5 du présent code » ?",
	}}

	result := resolver.ResolveReferences(context.Background(), refs, "", &model.TargetArticle{Code: "code rural et de la pêche maritime", Article: "L. 253-4"})
	if len(result.ResolvedDefinitional) != 1 {
		t.Fatalf("expected 1 resolved definitional reference, got %d (unresolved=%v)", len(result.ResolvedDefinitional), result.Unresolved)
	}
	if result.ResolvedDefinitional[0].ResolvedContent != "le texte en vigueur" {
		t.Errorf("unexpected resolved content: %q", result.ResolvedDefinitional[0].ResolvedContent)
	}
}

func TestResolveIsolatesClassificationFailure(t *testing.T) {
	client := newTestClient(`{"code": "", "article": ""}`)
	resolver := New(client, nil, nil, "")

	refs := []model.LinkedReference{{
		LocatedReference: model.LocatedReference{ReferenceText: "dudit article", Source: model.SourceDefinitional},
	}}

	result := resolver.ResolveReferences(context.Background(), refs, "", nil)
	if len(result.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved reference, got %d", len(result.Unresolved))
	}
}

func TestTryEUFileAccessReadsDirectFile(t *testing.T) {
	dir := t.TempDir()
	articleDir := filepath.Join(dir, eu1107RegulationDir, "Article_4")
	if err := os.MkdirAll(articleDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(articleDir, "Point_3.md"), []byte("---\n# Article 4\ncontenu du point 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver := New(nil, nil, nil, dir)
	content, ok := resolver.tryEUFileAccess("au sens de l'article 4, point 3) du règlement (CE) n° 1107/2009", "règlement (CE) n° 1107/2009", "4")
	if !ok {
		t.Fatalf("expected EU file access to succeed")
	}
	if content != "contenu du point 3" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestParseSubsectionPatternMatchesPointOfSection(t *testing.T) {
	resolver := New(nil, nil, nil, "")
	info, ok := resolver.parseSubsectionPattern(context.Background(), "mentionnées au 1° du II")
	if !ok {
		t.Fatalf("expected a deterministic subsection match")
	}
	if info.Section != "II" || info.Point != "1" || info.Kind != "point" {
		t.Errorf("unexpected subsection info: %+v", info)
	}
}

func TestExtractSubsectionFromContentCarvesSectionAndPoint(t *testing.T) {
	content := "I. Dispositions générales.\nII. Le présent article s'applique :\n1° Aux exploitants ;\n2° Aux distributeurs.\nIII. Entrée en vigueur."
	resolver := New(nil, nil, nil, "")
	extracted, ok := resolver.extractSubsectionFromContent(context.Background(), content, &subsectionInfo{Section: "II", Point: "1", Kind: "point"})
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if extracted == "" {
		t.Fatalf("expected non-empty extracted content")
	}
}
