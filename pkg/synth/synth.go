// Package synth implements LegalStateSynthesizer: deterministically
// rendering the per-chunk final LegalAnalysisOutput from the
// reconstructed before/after fragments and the resolved references that
// annotate them (spec.md §4.11). It makes no LLM calls — every decision
// here is regex and string-offset arithmetic, grounded on
// legal_state_synthesizer.py's LegalStateSynthesizer.synthesize.
package synth

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/coolbeans/regula/pkg/config"
	"github.com/coolbeans/regula/pkg/model"
)

// Synthesizer renders annotated legal states from resolved references.
type Synthesizer struct {
	config config.LegalStateConfig
}

// New creates a Synthesizer with the given rendering configuration.
func New(cfg config.LegalStateConfig) *Synthesizer {
	return &Synthesizer{config: cfg}
}

// Synthesize builds the final LegalAnalysisOutput for one chunk.
func (s *Synthesizer) Synthesize(chunk model.BillChunk, target model.TargetArticle, recon model.ReconstructorOutput, resolution model.ResolutionResult, originalArticleText string) model.LegalAnalysisOutput {
	beforeText, afterText := selectFragments(target.OperationType, recon)

	beforeResolved := resolution.ResolvedDeletional
	afterResolved := resolution.ResolvedDefinitional

	beforeState := s.annotateFragment(beforeText, beforeResolved, model.SourceDeletional)
	afterState := s.annotateFragment(afterText, afterResolved, model.SourceDefinitional)

	contextualSpans := s.computeContextualSpans(chunk, target, recon, originalArticleText)

	metadata := map[string]interface{}{
		"chunk_id": chunk.ChunkID,
		"target": map[string]interface{}{
			"operation_type": string(target.OperationType),
			"code":           target.Code,
			"article":        target.Article,
		},
		"counts": map[string]interface{}{
			"before": map[string]int{
				"resolved":  len(beforeResolved),
				"annotated": len(beforeState.Annotations),
			},
			"after": map[string]int{
				"resolved":  len(afterResolved),
				"annotated": len(afterState.Annotations),
			},
		},
		"config":           s.config,
		"contextual_spans": contextualSpans,
	}

	return model.LegalAnalysisOutput{
		ChunkID:     chunk.ChunkID,
		BeforeState: beforeState,
		AfterState:  afterState,
		Metadata:    metadata,
	}
}

// selectFragments maps an operation type to the before/after fragments it
// contributes, per spec.md §4.11's table.
func selectFragments(op model.OperationType, recon model.ReconstructorOutput) (before, after string) {
	switch op {
	case model.OpModify:
		return recon.DeletedOrReplacedText, recon.NewlyInsertedText
	case model.OpAbrogate:
		return recon.DeletedOrReplacedText, ""
	case model.OpInsert:
		return "", recon.NewlyInsertedText
	case model.OpRenumber, model.OpOther:
		return "", ""
	default:
		return recon.DeletedOrReplacedText, recon.NewlyInsertedText
	}
}

type match struct {
	start, end int
	ref        model.ResolvedReference
}

// annotateFragment matches each resolved reference's text within
// fragment, resolves overlaps (longest-leftmost wins), inserts [n]
// markers, and renders the configured footnote/inline block.
func (s *Synthesizer) annotateFragment(text string, resolved []model.ResolvedReference, source model.ReferenceSource) model.LegalState {
	if text == "" {
		return model.LegalState{Text: "", Annotations: []model.LegalReferenceAnnotation{}}
	}

	var matches []match
	for _, rr := range resolved {
		refText := rr.LinkedReference.ReferenceText
		if refText == "" {
			continue
		}
		if pos := strings.Index(text, refText); pos != -1 {
			matches = append(matches, match{start: pos, end: pos + len(refText), ref: rr})
			continue
		}
		if s.config.NormalizeMatching {
			pattern := buildPermissivePattern(refText)
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				continue
			}
			if loc := re.FindStringIndex(text); loc != nil {
				matches = append(matches, match{start: loc[0], end: loc[1], ref: rr})
			}
		}
	}

	if len(matches) == 0 {
		return model.LegalState{Text: text, Annotations: []model.LegalReferenceAnnotation{}}
	}

	sortMatches(matches)

	accepted := make([]match, 0, len(matches))
	lastEnd := -1
	seen := map[string]bool{}
	for _, m := range matches {
		if m.start < lastEnd {
			continue
		}
		refText := m.ref.LinkedReference.ReferenceText
		if !s.config.AnnotateAllOccurrences && seen[refText] {
			continue
		}
		accepted = append(accepted, m)
		lastEnd = m.end
		seen[refText] = true
	}

	annotatedText := text
	annotations := make([]model.LegalReferenceAnnotation, 0, len(accepted))
	offsetDelta := 0
	for idx, m := range accepted {
		markerIndex := idx + 1
		insertPos := m.end + offsetDelta
		marker := markerFor(markerIndex)
		annotatedText = annotatedText[:insertPos] + marker + annotatedText[insertPos:]

		annotations = append(annotations, model.LegalReferenceAnnotation{
			MarkerIndex:       markerIndex,
			ReferenceText:     m.ref.LinkedReference.ReferenceText,
			Object:            m.ref.LinkedReference.Object,
			ResolvedContent:   truncate(m.ref.ResolvedContent, s.config.MaxResolvedChars),
			Source:            source,
			StartOffset:       m.start + offsetDelta,
			EndOffset:         m.end + offsetDelta + len(marker),
			RetrievalMetadata: m.ref.RetrievalMetadata,
		})
		offsetDelta += len(marker)
	}

	switch s.config.RenderMode {
	case config.RenderInline:
		// Markers are already inserted inline; no trailing block.
	default:
		if len(annotations) > 0 {
			var lines []string
			lines = append(lines, "Références:")
			for _, a := range annotations {
				lines = append(lines, markerFor(a.MarkerIndex)+". "+a.ReferenceText+" → "+a.Object+": "+a.ResolvedContent+" (source: "+string(a.Source)+")")
			}
			annotatedText = strings.TrimRight(annotatedText, " \t\n") + "\n\n" + strings.Join(lines, "\n")
		}
	}

	return model.LegalState{Text: annotatedText, Annotations: annotations}
}

func markerFor(idx int) string {
	return "[" + strconv.Itoa(idx) + "]"
}

func truncate(s string, n int) string {
	if s == "" || n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// sortMatches orders by (start ascending, length descending) so that
// among overlapping candidates the longest-leftmost span is tried first.
func sortMatches(matches []match) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			a, b := matches[j-1], matches[j]
			if less(b, a) {
				matches[j-1], matches[j] = matches[j], matches[j-1]
			} else {
				break
			}
		}
	}
}

func less(a, b match) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return (a.end - a.start) > (b.end - b.start)
}

var permissiveReplacer = strings.NewReplacer(
	"«", `[«"]`,
	"»", `[»"]`,
	" ", `\s+`,
	"’", `['’]`,
	"‘", `['‘]`,
	"“", `["“]`,
	"”", `["”]`,
)

// buildPermissivePattern escapes refText for regexp.Compile, then relaxes
// French guillemets, curly quotes, and non-breaking spaces into character
// classes, so a reference text that round-tripped through different
// quote/space conventions still matches.
func buildPermissivePattern(refText string) string {
	escaped := regexp.QuoteMeta(refText)
	return permissiveReplacer.Replace(escaped)
}

// -- Contextual spans (lawyer-friendly view) -----------------------------

var paragraphSplitRE = regexp.MustCompile(`\n\n+|\r?\n`)

// computeContextualSpans finds the paragraph surrounding the deleted text
// in the original article and the inserted text in the after-state,
// falling back to an alinéa-ordinal or token-anchor search when the
// direct paragraph search comes up empty.
func (s *Synthesizer) computeContextualSpans(chunk model.BillChunk, target model.TargetArticle, recon model.ReconstructorOutput, originalArticleText string) map[string]string {
	spans := map[string]string{"before": "", "after": ""}

	if originalArticleText != "" && (target.OperationType == model.OpModify || target.OperationType == model.OpAbrogate) {
		spans["before"] = s.computeContextSpan(originalArticleText, recon.DeletedOrReplacedText)
	}
	if recon.IntermediateAfterStateText != "" {
		needle := recon.NewlyInsertedText
		if needle == "" {
			needle = recon.DeletedOrReplacedText
		}
		spans["after"] = s.computeContextSpan(recon.IntermediateAfterStateText, needle)
	}

	if spans["before"] == "" && originalArticleText != "" && target.OperationType == model.OpModify {
		if ordinal, ok := parseAlineaOrdinal(chunk.Text); ok && ordinal >= 1 {
			if orig := extractAlineaByIndex(originalArticleText, ordinal); orig != "" {
				spans["before"] = orig
			}
			if after := extractAlineaByIndex(recon.IntermediateAfterStateText, ordinal); after != "" {
				spans["after"] = after
			}
		}
		if spans["before"] == "" {
			if token, ok := parseAfterWordToken(chunk.Text); ok {
				spans["before"] = s.computeContextSpan(originalArticleText, token)
				spans["after"] = s.computeContextSpan(recon.IntermediateAfterStateText, token)
			}
		}
	}

	return spans
}

// computeContextSpan returns the paragraph (or, failing that, sentence)
// in haystack that best contains needleText.
func (s *Synthesizer) computeContextSpan(haystack, needleText string) string {
	if haystack == "" || needleText == "" {
		return ""
	}

	needle := strings.TrimSpace(needleText)
	if len(needle) > 120 {
		start := len(needle)/2 - 60
		if start < 0 {
			start = 0
		}
		end := start + 120
		if end > len(needle) {
			end = len(needle)
		}
		needle = needle[start:end]
	}

	idx := strings.Index(haystack, needle)
	if idx == -1 && s.config.NormalizeMatching {
		pattern := buildPermissivePattern(needle)
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			if loc := re.FindStringIndex(haystack); loc != nil {
				idx = loc[0]
			}
		}
	}
	if idx == -1 {
		return ""
	}

	pos := 0
	for _, para := range paragraphSplitRE.Split(haystack, -1) {
		start := pos
		end := pos + len(para)
		if start <= idx && idx < end {
			if len(strings.TrimSpace(para)) >= 20 {
				return strings.TrimSpace(para)
			}
			break
		}
		pos = end + 1
	}

	left := strings.LastIndex(haystack[:idx], ".")
	leftQ := strings.LastIndex(haystack[:idx], "»")
	if leftQ > left {
		left = leftQ
	}
	right := indexFrom(haystack, ".", idx)
	rightQ := indexFrom(haystack, "«", idx)
	if right == -1 || (rightQ != -1 && rightQ < right) {
		right = rightQ
	}
	if left == -1 {
		left = idx - 120
		if left < 0 {
			left = 0
		}
	}
	if right == -1 {
		right = idx + 200
		if right > len(haystack) {
			right = len(haystack)
		}
	} else if right+1 <= len(haystack) {
		right = right + 1
	}
	if left > right || left > len(haystack) {
		return ""
	}
	if right > len(haystack) {
		right = len(haystack)
	}
	return strings.TrimSpace(haystack[left:right])
}

func indexFrom(haystack, sep string, from int) int {
	if from >= len(haystack) {
		return -1
	}
	rel := strings.Index(haystack[from:], sep)
	if rel == -1 {
		return -1
	}
	return from + rel
}

var alineaOrdinals = map[string]int{
	"premier": 1, "première": 1, "deuxième": 2, "troisième": 3, "quatrième": 4, "cinquième": 5,
	"sixième": 6, "septième": 7, "huitième": 8, "neuvième": 9, "dixième": 10,
	"onzième": 11, "douzième": 12, "treizième": 13, "quatorzième": 14, "quinzième": 15,
	"seizième": 16, "dix-septième": 17, "dix-huitième": 18, "dix-neuvième": 19, "vingtième": 20,
}

var (
	alineaWordRE   = regexp.MustCompile(`(premier|première|deuxième|troisième|quatrième|cinquième|sixième|septième|huitième|neuvième|dixième|onzième|douzième|treizième|quatorzième|quinzième|seizième|dix-septième|dix-huitième|dix-neuvième|vingtième)\s+alinéa`)
	alineaDigitRE  = regexp.MustCompile(`(\d+)[e°]?\s+alinéa`)
	afterWordTokRE = regexp.MustCompile(`(?i)Après\s+le\s+mot\s*[:]?\s*[«"]([^»"]+)[»"]`)
)

// parseAlineaOrdinal parses a French ordinal alinéa reference ("sixième
// alinéa", "6e alinéa") into a 1-based paragraph index.
func parseAlineaOrdinal(instructionText string) (int, bool) {
	if instructionText == "" {
		return 0, false
	}
	text := strings.ToLower(instructionText)
	if m := alineaWordRE.FindStringSubmatch(text); m != nil {
		if n, ok := alineaOrdinals[m[1]]; ok {
			return n, true
		}
	}
	if m := alineaDigitRE.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// extractAlineaByIndex returns the Nth non-empty paragraph (an
// approximate alinéa) from articleText.
func extractAlineaByIndex(articleText string, ordinalIndex int) string {
	if articleText == "" || ordinalIndex < 1 {
		return ""
	}
	var paragraphs []string
	for _, p := range paragraphSplitRE.Split(articleText, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if ordinalIndex > len(paragraphs) {
		return ""
	}
	return paragraphs[ordinalIndex-1]
}

// parseAfterWordToken extracts the quoted token from phrases like
// `Après le mot : « X »`.
func parseAfterWordToken(instructionText string) (string, bool) {
	if instructionText == "" {
		return "", false
	}
	m := afterWordTokRE.FindStringSubmatch(instructionText)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
