// Package reflocate implements ReferenceLocator: finding normative
// references (to articles, codes, EU regulations, decrees) inside the
// deleted/replaced and newly-inserted text fragments produced by
// pkg/reconstruct, tagging each by source (spec.md §4.8). The primary
// path is an LLM JSON-mode call whose reported spans are checked and
// re-searched against the fragment text; a deterministic regex candidate
// generator, adapted from the teacher's EU-style cross-reference
// patterns but rewritten for French wording, adds the references the LLM
// did not report.
package reflocate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const component = "reference_locator"

const systemPrompt = `Vous êtes un localisateur de références juridiques pour des textes législatifs français. À partir de deux fragments de texte issus d'un processus d'amendement législatif :
- deleted_or_replaced_text : le texte supprimé ou remplacé (marquez les références "DELETIONAL")
- intermediate_after_state_text : le texte après l'amendement (marquez les références "DEFINITIONAL")

Identifiez toutes les références normatives (articles, codes, règlements, décrets, etc.) dans les deux fragments. Pour chaque référence, retournez reference_text (la phrase exacte), start_position et end_position (index de caractères 0-based dans le fragment concerné, end exclusif), source ("DELETIONAL" ou "DEFINITIONAL"), et confidence (0 à 1).

Répondez en JSON avec une clé "located_references": une liste de ces objets. Une liste vide est une réponse valide si aucune référence n'est trouvée.

Exemples de formes à identifier : "aux 1° ou 2° du II", "au IV", "du même article", "l'article L. 254-1", "à l'article L. 253-5 du présent code", "du règlement (CE) n° 1107/2009", "au sens de l'article 23 du règlement (CE) n° 1107/2009", "du même règlement", "dudit article".`

// DefaultMinConfidence is the confidence threshold below which a located
// reference is dropped (spec.md §4.8, "Filtering").
const DefaultMinConfidence = 0.5

// searchWindow is the number of characters searched on either side of an
// LLM-suggested position before falling back to a full-fragment search.
const searchWindow = 50

// Locator finds and source-tags normative references in a
// ReconstructorOutput's before/after fragments.
type Locator struct {
	client        *llm.Client
	cache         *cache.Cache
	minConfidence float64
}

// New creates a Locator with the default confidence threshold. cache may
// be nil to disable caching.
func New(client *llm.Client, c *cache.Cache) *Locator {
	return &Locator{client: client, cache: c, minConfidence: DefaultMinConfidence}
}

// WithMinConfidence overrides the confidence filtering threshold.
func (l *Locator) WithMinConfidence(min float64) *Locator {
	l.minConfidence = min
	return l
}

type cacheKey struct {
	Deleted   string `json:"deleted_or_replaced_text"`
	AfterText string `json:"intermediate_after_state_text"`
}

type rawLocatedReference struct {
	ReferenceText string  `json:"reference_text"`
	StartPosition int     `json:"start_position"`
	EndPosition   int     `json:"end_position"`
	Source        string  `json:"source"`
	Confidence    float64 `json:"confidence"`
}

type rawResponse struct {
	LocatedReferences []rawLocatedReference `json:"located_references"`
}

// Locate identifies normative references in output's deleted/replaced and
// after-state fragments. It never returns an error for an unparsable or
// failed LLM response — instead it falls back to the deterministic
// candidate generator alone, since a downstream stage missing a
// reference is recoverable while aborting the whole chunk is not.
func (l *Locator) Locate(ctx context.Context, output model.ReconstructorOutput) ([]model.LocatedReference, error) {
	fragments := map[model.ReferenceSource]string{
		model.SourceDeletional:   output.DeletedOrReplacedText,
		model.SourceDefinitional: output.IntermediateAfterStateText,
	}

	key := cacheKey{Deleted: fragments[model.SourceDeletional], AfterText: fragments[model.SourceDefinitional]}
	if l.cache != nil {
		var cached []model.LocatedReference
		if hit, err := l.cache.Get(component, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	located, err := l.locateViaLLM(ctx, fragments)
	if err != nil {
		// Deterministic candidates still give downstream stages
		// something to work with when the LLM call itself failed.
		located = deterministicCandidates(fragments)
	} else {
		located = mergeDeterministicCandidates(located, deterministicCandidates(fragments))
	}

	filtered := filterByConfidence(located, l.minConfidence)

	if l.cache != nil {
		_ = l.cache.Set(component, key, filtered)
	}
	return filtered, nil
}

func (l *Locator) locateViaLLM(ctx context.Context, fragments map[model.ReferenceSource]string) ([]model.LocatedReference, error) {
	userPayload := map[string]string{
		"deleted_or_replaced_text":      fragments[model.SourceDeletional],
		"intermediate_after_state_text": fragments[model.SourceDefinitional],
	}
	userPrompt, err := json.Marshal(userPayload)
	if err != nil {
		return nil, fmt.Errorf("reflocate: marshaling user prompt: %w", err)
	}

	resp, err := l.client.CallMessages(ctx, component, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: string(userPrompt)},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("reflocate: LLM call failed: %w", err)
	}

	var raw rawResponse
	if jsonErr := json.Unmarshal([]byte(resp.Content), &raw); jsonErr != nil {
		return nil, fmt.Errorf("reflocate: failed to parse API response: %w", jsonErr)
	}

	located := make([]model.LocatedReference, 0, len(raw.LocatedReferences))
	for _, refData := range raw.LocatedReferences {
		ref, ok := validateAndCorrectPositioning(refData, fragments)
		if !ok {
			continue
		}
		located = append(located, ref)
	}
	return located, nil
}

// validateAndCorrectPositioning checks the LLM-reported span against the
// fragment text, flexibly correcting the position with a ±searchWindow
// search and finally a full-fragment search, matching the original's
// "flexible position correction" behavior exactly.
func validateAndCorrectPositioning(refData rawLocatedReference, fragments map[model.ReferenceSource]string) (model.LocatedReference, bool) {
	if refData.ReferenceText == "" {
		return model.LocatedReference{}, false
	}
	if refData.StartPosition < 0 || refData.EndPosition <= refData.StartPosition {
		return model.LocatedReference{}, false
	}

	var source model.ReferenceSource
	switch refData.Source {
	case string(model.SourceDeletional):
		source = model.SourceDeletional
	case string(model.SourceDefinitional):
		source = model.SourceDefinitional
	default:
		return model.LocatedReference{}, false
	}

	if refData.Confidence < 0 || refData.Confidence > 1 {
		return model.LocatedReference{}, false
	}

	fragmentText := fragments[source]

	if refData.EndPosition <= len(fragmentText) {
		if fragmentText[refData.StartPosition:refData.EndPosition] == refData.ReferenceText {
			return model.LocatedReference{
				ReferenceText: refData.ReferenceText,
				Source:        source,
				Confidence:    refData.Confidence,
				StartOffset:   refData.StartPosition,
				EndOffset:     refData.EndPosition,
			}, true
		}
	}

	if corrected, ok := findInWindow(refData.ReferenceText, fragmentText, refData.StartPosition, searchWindow); ok {
		return model.LocatedReference{
			ReferenceText: refData.ReferenceText,
			Source:        source,
			Confidence:    refData.Confidence,
			StartOffset:   corrected,
			EndOffset:     corrected + len(refData.ReferenceText),
		}, true
	}

	if pos := strings.Index(fragmentText, refData.ReferenceText); pos != -1 {
		return model.LocatedReference{
			ReferenceText: refData.ReferenceText,
			Source:        source,
			Confidence:    refData.Confidence,
			StartOffset:   pos,
			EndOffset:     pos + len(refData.ReferenceText),
		}, true
	}

	return model.LocatedReference{}, false
}

func findInWindow(referenceText, fragmentText string, suggestedPos, window int) (int, bool) {
	startSearch := suggestedPos - window
	if startSearch < 0 {
		startSearch = 0
	}
	endSearch := suggestedPos + window + len(referenceText)
	if endSearch > len(fragmentText) {
		endSearch = len(fragmentText)
	}
	if startSearch >= endSearch || startSearch > len(fragmentText) {
		return 0, false
	}

	searchText := fragmentText[startSearch:endSearch]
	localPos := strings.Index(searchText, referenceText)
	if localPos == -1 {
		return 0, false
	}
	return startSearch + localPos, true
}

func filterByConfidence(refs []model.LocatedReference, minConfidence float64) []model.LocatedReference {
	filtered := make([]model.LocatedReference, 0, len(refs))
	for _, ref := range refs {
		if ref.Confidence >= minConfidence {
			filtered = append(filtered, ref)
		}
	}
	return filtered
}

// -- Deterministic candidate generator -----------------------------------
//
// Adapted from the teacher's pkg/extract.ReferenceExtractor internal/
// external reference regex families (Article/paragraph/point/chapter and
// directive/regulation/treaty patterns), rewritten for French
// legislative wording since the teacher's patterns match English/US
// statutory phrasing. Candidates are merged with the LLM's output at a
// fixed high confidence: they exist to catch references the LLM missed
// (or to stand in entirely when the LLM call failed), not to replace its
// judgment on ambiguous spans.
var (
	frCodeArticleRE   = regexp.MustCompile(`(?i)(?:l'|à l'|de l'|des |aux? )articles?\s+(?:[LRD]\.?\s*)?\d+(?:[-–]\d+)*(?:\s+(?:et|ou|à)\s+(?:[LRD]\.?\s*)?\d+(?:[-–]\d+)*)?(?:\s+du\s+présent\s+code)?`)
	frInternalPointRE = regexp.MustCompile(`(?i)(?:aux?|du|des)\s+(?:\d+°|[IVXLCDM]+)(?:\s+(?:ou|et)\s+(?:\d+°|[IVXLCDM]+))?\s+du\s+[IVXLCDM]+`)
	frEURegulationRE  = regexp.MustCompile(`(?i)(?:du|de l'article \d+ du|au sens de l'article \d+ du)\s*(?:même\s+)?règlement\s*\(CE\)\s*n°?\s*\d+/\d+`)
	frRelativeRefRE   = regexp.MustCompile(`(?i)du même (?:article|règlement|code)|dudit article`)
)

var candidatePatterns = []*regexp.Regexp{frCodeArticleRE, frEURegulationRE, frInternalPointRE, frRelativeRefRE}

const candidateConfidence = 0.75

func deterministicCandidates(fragments map[model.ReferenceSource]string) []model.LocatedReference {
	var out []model.LocatedReference
	for source, text := range fragments {
		if text == "" {
			continue
		}
		for _, pattern := range candidatePatterns {
			for _, loc := range pattern.FindAllStringIndex(text, -1) {
				out = append(out, model.LocatedReference{
					ReferenceText: text[loc[0]:loc[1]],
					Source:        source,
					Confidence:    candidateConfidence,
					StartOffset:   loc[0],
					EndOffset:     loc[1],
				})
			}
		}
	}
	return out
}

// mergeDeterministicCandidates adds any deterministic candidate whose
// span doesn't overlap an LLM-located reference in the same fragment,
// so the two sources complement rather than duplicate each other.
func mergeDeterministicCandidates(llmRefs, candidates []model.LocatedReference) []model.LocatedReference {
	merged := make([]model.LocatedReference, len(llmRefs))
	copy(merged, llmRefs)

	for _, cand := range candidates {
		overlaps := false
		for _, existing := range llmRefs {
			if existing.Source != cand.Source {
				continue
			}
			if cand.StartOffset < existing.EndOffset && existing.StartOffset < cand.EndOffset {
				overlaps = true
				break
			}
		}
		if !overlaps {
			merged = append(merged, cand)
		}
	}
	return merged
}
