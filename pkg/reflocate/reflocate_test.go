package reflocate

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

func TestLocateAcceptsExactPosition(t *testing.T) {
	deleted := "incompatible avec celui des activités mentionnées aux 1° ou 2° du II ou au IV."
	content := `{"located_references": [{"reference_text": "aux 1° ou 2° du II", "start_position": 51, "end_position": 69, "source": "DELETIONAL", "confidence": 0.98}]}`

	loc := New(newTestClient(content), nil)
	refs, err := loc.Locate(context.Background(), model.ReconstructorOutput{DeletedOrReplacedText: deleted})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	found := false
	for _, r := range refs {
		if r.ReferenceText == "aux 1° ou 2° du II" && r.Source == model.SourceDeletional {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact-position reference present, got %+v", refs)
	}
}

func TestLocateCorrectsOffsetWithinWindow(t *testing.T) {
	afterText := "interdit aux producteurs au sens du 11 de l'article 3 du règlement (CE) n° 1107/2009"
	// start_position deliberately off by a few characters from the true offset.
	content := `{"located_references": [{"reference_text": "au sens du 11 de l'article 3 du règlement (CE) n° 1107/2009", "start_position": 30, "end_position": 91, "source": "DEFINITIONAL", "confidence": 0.9}]}`

	loc := New(newTestClient(content), nil)
	refs, err := loc.Locate(context.Background(), model.ReconstructorOutput{IntermediateAfterStateText: afterText})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	var corrected *model.LocatedReference
	for i := range refs {
		if refs[i].ReferenceText == "au sens du 11 de l'article 3 du règlement (CE) n° 1107/2009" {
			corrected = &refs[i]
		}
	}
	if corrected == nil {
		t.Fatalf("expected corrected reference present, got %+v", refs)
	}
	want := afterText[corrected.StartOffset:corrected.EndOffset]
	if want != corrected.ReferenceText {
		t.Errorf("corrected offsets don't round-trip: got %q", want)
	}
}

func TestLocateDropsReferenceNotFoundAnywhere(t *testing.T) {
	content := `{"located_references": [{"reference_text": "ne figure nulle part", "start_position": 0, "end_position": 10, "source": "DELETIONAL", "confidence": 0.9}]}`

	loc := New(newTestClient(content), nil)
	refs, err := loc.Locate(context.Background(), model.ReconstructorOutput{DeletedOrReplacedText: "un texte qui ne contient pas la référence indiquée"})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	for _, r := range refs {
		if r.ReferenceText == "ne figure nulle part" {
			t.Fatalf("expected unlocatable reference to be dropped")
		}
	}
}

func TestLocateFiltersLowConfidence(t *testing.T) {
	deleted := "du règlement (CE) n° 1107/2009 et d'un décret."
	content := `{"located_references": [{"reference_text": "du règlement (CE) n° 1107/2009", "start_position": 0, "end_position": 31, "source": "DELETIONAL", "confidence": 0.2}]}`

	loc := New(newTestClient(content), nil)
	refs, err := loc.Locate(context.Background(), model.ReconstructorOutput{DeletedOrReplacedText: deleted})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	for _, r := range refs {
		if r.Confidence < DefaultMinConfidence {
			t.Fatalf("expected low-confidence reference filtered out, found %+v", r)
		}
	}
}

func TestLocateFallsBackToDeterministicCandidatesOnLLMFailure(t *testing.T) {
	deleted := "prévu aux articles L. 254-6-2 et L. 254-6-3"
	loc := New(newTestClient("not json"), nil)

	refs, err := loc.Locate(context.Background(), model.ReconstructorOutput{DeletedOrReplacedText: deleted})
	if err != nil {
		t.Fatalf("Locate should not error on unparsable LLM response, got: %v", err)
	}
	if len(refs) == 0 {
		t.Fatalf("expected deterministic candidate fallback to find a reference, got none")
	}
}

func TestDeterministicCandidatesFindCodeArticle(t *testing.T) {
	fragments := map[model.ReferenceSource]string{
		model.SourceDefinitional: "conformément à l'article L. 253-5 du présent code",
	}
	candidates := deterministicCandidates(fragments)
	if len(candidates) == 0 {
		t.Fatalf("expected at least one deterministic candidate")
	}
}
