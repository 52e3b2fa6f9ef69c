// Package reflink implements ReferenceObjectLinker: for each located
// reference, picking the grammatical object it modifies and producing a
// precise resolution question the referenced text must answer (spec.md
// §4.9). Context is source-switched — DELETIONAL references are
// analyzed against the deleted/replaced fragment, DEFINITIONAL
// references against the after-state fragment — exactly as the original
// does, since a reference's grammatical object only exists in the
// fragment it was found in.
package reflink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const component = "reference_object_linker"

const systemPrompt = `Vous êtes un analyste grammatical de textes juridiques français. Votre tâche est de relier des références normatives à leur objet grammatical par analyse grammaticale française.

Étant donné une référence juridique et son contexte environnant, identifiez le groupe nominal complet que la référence modifie, définit ou précise. Portez attention aux accords grammaticaux français :
- Masculin singulier : "au sens du" → accord avec un nom masculin singulier (ex. "producteur")
- Féminin singulier : "à la liste mentionnée à" → accord avec un nom féminin singulier (ex. "la liste")
- Masculin pluriel : "aux activités mentionnées aux" → accord avec un nom masculin pluriel (ex. "activités")
- Féminin pluriel : "aux substances mentionnées aux" → accord avec un nom féminin pluriel (ex. "substances")

Répondez en JSON avec "object" (le groupe nominal complet), "agreement_analysis" (le raisonnement grammatical), et "confidence" (0 à 1, plus faible pour les cas ambigus ou les relations grammaticales distantes).`

// Linker links located references to their grammatical objects.
type Linker struct {
	client *llm.Client
	cache  *cache.Cache
}

// New creates a Linker. cache may be nil to disable caching.
func New(client *llm.Client, c *cache.Cache) *Linker {
	return &Linker{client: client, cache: c}
}

type cacheKey struct {
	ReferenceText string `json:"reference_text"`
	ContextText   string `json:"context_text"`
	Source        string `json:"source"`
}

type rawLinkResponse struct {
	Object             *string  `json:"object"`
	AgreementAnalysis   *string  `json:"agreement_analysis"`
	Confidence          *float64 `json:"confidence"`
}

// LinkReferences links each located reference to its grammatical object.
// Per-reference failures (missing context, unusable LLM response) are
// isolated: they are skipped and logged, never aborting the remaining
// references, matching the original's try/except-per-reference loop.
func (l *Linker) LinkReferences(ctx context.Context, locatedReferences []model.LocatedReference, output model.ReconstructorOutput) []model.LinkedReference {
	linked := make([]model.LinkedReference, 0, len(locatedReferences))

	for _, ref := range locatedReferences {
		contextText := selectContext(ref.Source, output)
		if strings.TrimSpace(contextText) == "" {
			continue
		}

		linkedRef, ok := l.linkOne(ctx, ref, contextText)
		if !ok {
			continue
		}
		linked = append(linked, linkedRef)
	}

	return linked
}

func selectContext(source model.ReferenceSource, output model.ReconstructorOutput) string {
	if source == model.SourceDeletional {
		return output.DeletedOrReplacedText
	}
	return output.IntermediateAfterStateText
}

func (l *Linker) linkOne(ctx context.Context, ref model.LocatedReference, contextText string) (model.LinkedReference, bool) {
	key := cacheKey{ReferenceText: ref.ReferenceText, ContextText: contextText, Source: string(ref.Source)}
	if l.cache != nil {
		var cached model.LinkedReference
		if hit, err := l.cache.Get(component, key, &cached); err == nil && hit {
			return cached, true
		}
	}

	userPrompt := buildGrammaticalAnalysisPrompt(ref, contextText)
	resp, err := l.client.CallMessages(ctx, component, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, true)
	if err != nil {
		return model.LinkedReference{}, false
	}

	var raw rawLinkResponse
	if jsonErr := json.Unmarshal([]byte(resp.Content), &raw); jsonErr != nil {
		return model.LinkedReference{}, false
	}
	if !validLinkResponse(raw) {
		return model.LinkedReference{}, false
	}

	object := strings.TrimSpace(*raw.Object)
	agreement := strings.TrimSpace(*raw.AgreementAnalysis)

	linkedRef := model.LinkedReference{
		LocatedReference:   ref,
		Object:             object,
		AgreementAnalysis:  agreement,
		ResolutionQuestion: buildResolutionQuestion(ref, object),
	}
	linkedRef.Confidence = *raw.Confidence

	if l.cache != nil {
		_ = l.cache.Set(component, key, linkedRef)
	}
	return linkedRef, true
}

func validLinkResponse(raw rawLinkResponse) bool {
	if raw.Object == nil || strings.TrimSpace(*raw.Object) == "" {
		return false
	}
	if raw.AgreementAnalysis == nil || strings.TrimSpace(*raw.AgreementAnalysis) == "" {
		return false
	}
	if raw.Confidence == nil || *raw.Confidence < 0 || *raw.Confidence > 1 {
		return false
	}
	return true
}

func buildGrammaticalAnalysisPrompt(ref model.LocatedReference, contextText string) string {
	return fmt.Sprintf(
		"Analysez cette référence juridique française et identifiez son objet grammatical :\n\n"+
			"RÉFÉRENCE À ANALYSER : %q\n\n"+
			"CONTEXTE COMPLET : %q\n\n"+
			"POSITION DE LA RÉFÉRENCE : caractères %d-%d\n\n"+
			"SOURCE DE LA RÉFÉRENCE : %s\n\n"+
			"Identifiez le groupe nominal complet que cette référence modifie, définit ou précise. "+
			"Considérez l'accord grammatical (genre, nombre), la proximité, le sens juridique, et les "+
			"constructions prépositionnelles (au/à la/aux, du/de la/des, etc.).",
		ref.ReferenceText, contextText, ref.StartOffset, ref.EndOffset, ref.Source,
	)
}

// buildResolutionQuestion generates the precise question the referenced
// text must answer, by template over (reference_text, object, source)
// rather than a second LLM call — spec.md §4.9 permits either choice,
// and a template keeps linking deterministic and cache-free for this
// step, consistent with spec.md's preference to minimize LLM calls
// where a fixed pattern suffices.
func buildResolutionQuestion(ref model.LocatedReference, object string) string {
	switch ref.Source {
	case model.SourceDeletional:
		return fmt.Sprintf("Que définissait « %s » concernant %s dans le texte d'origine ?", ref.ReferenceText, object)
	default:
		return fmt.Sprintf("Que définit « %s » concernant %s dans le texte tel que modifié ?", ref.ReferenceText, object)
	}
}
