package synth

import (
	"strings"
	"testing"

	"github.com/coolbeans/regula/pkg/config"
	"github.com/coolbeans/regula/pkg/model"
)

func defaultConfig() config.LegalStateConfig {
	return config.LegalStateConfig{
		RenderMode:             config.RenderFootnote,
		MaxResolvedChars:       200,
		AnnotateAllOccurrences: false,
		NormalizeMatching:      true,
	}
}

func TestSynthesizeModifyAnnotatesBothFragments(t *testing.T) {
	s := New(defaultConfig())

	chunk := model.BillChunk{ChunkID: "c1", Text: "Au premier alinéa, les mots : « aux 1° ou 2° du II » sont remplacés."}
	target := model.TargetArticle{OperationType: model.OpModify, Code: "code rural et de la pêche maritime", Article: "L. 253-4"}
	recon := model.ReconstructorOutput{
		DeletedOrReplacedText:      "incompatible avec celui des activités mentionnées aux 1° ou 2° du II",
		NewlyInsertedText:          "incompatible avec celui des activités mentionnées au 3° du II",
		IntermediateAfterStateText: "Le texte complet incompatible avec celui des activités mentionnées au 3° du II en vigueur.",
	}
	resolution := model.ResolutionResult{
		ResolvedDeletional: []model.ResolvedReference{{
			LinkedReference: model.LinkedReference{
				LocatedReference: model.LocatedReference{ReferenceText: "aux 1° ou 2° du II", Source: model.SourceDeletional},
				Object:           "activités",
			},
			ResolvedContent:   "les activités de production et de distribution",
			RetrievalMetadata: model.RetrievalMetadata{Source: "original_article_text"},
		}},
		ResolvedDefinitional: []model.ResolvedReference{{
			LinkedReference: model.LinkedReference{
				LocatedReference: model.LocatedReference{ReferenceText: "au 3° du II", Source: model.SourceDefinitional},
				Object:           "activités",
			},
			ResolvedContent:   "les activités de conseil",
			RetrievalMetadata: model.RetrievalMetadata{Source: "corpus"},
		}},
	}

	out := s.Synthesize(chunk, target, recon, resolution, "texte original complet de l'article L. 253-4.")

	if out.ChunkID != "c1" {
		t.Errorf("expected chunk id c1, got %q", out.ChunkID)
	}
	if len(out.BeforeState.Annotations) != 1 {
		t.Fatalf("expected 1 before annotation, got %d: %q", len(out.BeforeState.Annotations), out.BeforeState.Text)
	}
	if !strings.Contains(out.BeforeState.Text, "[1]") {
		t.Errorf("expected marker [1] inserted into before text, got %q", out.BeforeState.Text)
	}
	if !strings.Contains(out.BeforeState.Text, "Références:") {
		t.Errorf("expected footnote block in before text, got %q", out.BeforeState.Text)
	}
	if len(out.AfterState.Annotations) != 1 {
		t.Fatalf("expected 1 after annotation, got %d", len(out.AfterState.Annotations))
	}
}

func TestSynthesizeAbrogateHasNoAfterFragment(t *testing.T) {
	s := New(defaultConfig())
	chunk := model.BillChunk{ChunkID: "c2"}
	target := model.TargetArticle{OperationType: model.OpAbrogate}
	recon := model.ReconstructorOutput{DeletedOrReplacedText: "le texte abrogé"}

	out := s.Synthesize(chunk, target, recon, model.ResolutionResult{}, "")
	if out.AfterState.Text != "" {
		t.Errorf("expected empty after fragment for ABROGATE, got %q", out.AfterState.Text)
	}
	if out.BeforeState.Text != "le texte abrogé" {
		t.Errorf("expected unchanged before fragment, got %q", out.BeforeState.Text)
	}
}

func TestSynthesizeInlineModeSkipsFootnoteBlock(t *testing.T) {
	cfg := defaultConfig()
	cfg.RenderMode = config.RenderInline
	s := New(cfg)

	chunk := model.BillChunk{ChunkID: "c3"}
	target := model.TargetArticle{OperationType: model.OpInsert}
	recon := model.ReconstructorOutput{NewlyInsertedText: "conformément à l'article L. 253-5 du présent code."}
	resolution := model.ResolutionResult{
		ResolvedDefinitional: []model.ResolvedReference{{
			LinkedReference: model.LinkedReference{
				LocatedReference: model.LocatedReference{ReferenceText: "l'article L. 253-5", Source: model.SourceDefinitional},
				Object:           "substances",
			},
			ResolvedContent: "liste des substances actives",
		}},
	}

	out := s.Synthesize(chunk, target, recon, resolution, "")
	if strings.Contains(out.AfterState.Text, "Références:") {
		t.Errorf("inline mode should not append a footnote block, got %q", out.AfterState.Text)
	}
	if !strings.Contains(out.AfterState.Text, "[1]") {
		t.Errorf("expected marker still inserted inline, got %q", out.AfterState.Text)
	}
}

func TestSynthesizeRenumberHasNoFragments(t *testing.T) {
	s := New(defaultConfig())
	chunk := model.BillChunk{ChunkID: "c4"}
	target := model.TargetArticle{OperationType: model.OpRenumber}
	recon := model.ReconstructorOutput{DeletedOrReplacedText: "L. 253-4", NewlyInsertedText: "L. 253-5"}

	out := s.Synthesize(chunk, target, recon, model.ResolutionResult{}, "")
	if out.BeforeState.Text != "" || out.AfterState.Text != "" {
		t.Errorf("expected empty fragments for RENUMBER, got before=%q after=%q", out.BeforeState.Text, out.AfterState.Text)
	}
}

func TestParseAlineaOrdinalParsesWordAndDigitForms(t *testing.T) {
	if n, ok := parseAlineaOrdinal("Au sixième alinéa de l'article, les mots sont remplacés."); !ok || n != 6 {
		t.Errorf("expected ordinal 6, got %d (ok=%v)", n, ok)
	}
	if n, ok := parseAlineaOrdinal("Au 3e alinéa, insérer..."); !ok || n != 3 {
		t.Errorf("expected ordinal 3, got %d (ok=%v)", n, ok)
	}
}

func TestExtractAlineaByIndexReturnsNthParagraph(t *testing.T) {
	text := "Premier alinéa.\n\nDeuxième alinéa.\n\nTroisième alinéa."
	if got := extractAlineaByIndex(text, 2); got != "Deuxième alinéa." {
		t.Errorf("expected second paragraph, got %q", got)
	}
}

func TestComputeContextSpanFindsEnclosingParagraph(t *testing.T) {
	s := New(defaultConfig())
	haystack := "Premier alinéa sans rapport.\n\nLe texte incompatible avec celui des activités mentionnées aux 1° ou 2° du II est concerné ici.\n\nTroisième alinéa."
	got := s.computeContextSpan(haystack, "activités mentionnées aux 1° ou 2° du II")
	if !strings.Contains(got, "activités mentionnées") {
		t.Errorf("expected enclosing paragraph returned, got %q", got)
	}
}
