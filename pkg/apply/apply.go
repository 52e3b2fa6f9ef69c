// Package apply implements OperationApplier: applying one atomic
// AmendmentOperation to a legal text (spec.md §3.5). A set of
// deterministic fast-paths handles the position-hint shapes the
// InstructionDecomposer reliably produces (alinéa rewrite, alinéa
// token-tail rewrite, a structural REPLACE scoped to a single numbered
// point within a Roman-numeral section); anything else falls through to
// an LLM call instructed to perform the edit and return the full
// modified text.
package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const component = "operation_applier"

const systemPrompt = `Vous appliquez une opération atomique d'amendement législatif français à un texte. Respectez strictement le type d'opération (REPLACE, DELETE, INSERT, ADD, REWRITE, ABROGATE) et l'indication de position fournie. Répondez en JSON avec "success" (booléen), "modified_text" (le texte intégral après application), "applied_fragment" (le texte inséré ou modifié), "error_message" (chaîne ou null), et "confidence" (0 à 1).`

// ApplicationResult is the outcome of applying a single operation.
type ApplicationResult struct {
	Success         bool
	ModifiedText    string
	AppliedFragment string
	ErrorMessage    string
	Confidence      float64
}

// Applier applies AmendmentOperations to legal text.
type Applier struct {
	client *llm.Client
	cache  *cache.Cache
}

// New creates an Applier. cache may be nil to disable caching.
func New(client *llm.Client, c *cache.Cache) *Applier {
	return &Applier{client: client, cache: c}
}

type cacheKey struct {
	OriginalText    string `json:"original_text"`
	OperationType   string `json:"operation_type"`
	TargetText      string `json:"target_text"`
	ReplacementText string `json:"replacement_text"`
	PositionHint    string `json:"position_hint"`
}

func keyFor(originalText string, op model.AmendmentOperation) cacheKey {
	return cacheKey{
		OriginalText:    originalText,
		OperationType:   string(op.OperationType),
		TargetText:      op.TargetText,
		ReplacementText: op.ReplacementText,
		PositionHint:    op.PositionHintRaw,
	}
}

// ApplySingleOperation applies op to originalText. Like the original
// implementation, failures are reported through Success=false rather
// than a returned error — an operation that can't be applied is a
// normal pipeline outcome (spec.md §3.5, §3.6), not a fatal one.
func (a *Applier) ApplySingleOperation(ctx context.Context, originalText string, op model.AmendmentOperation) *ApplicationResult {
	if det := a.tryDeterministicApplication(originalText, op); det != nil {
		if det.Success {
			a.store(originalText, op, det)
			return det
		}
		// fall through to the LLM path on a failed deterministic attempt
	}

	if val := validateOperationInput(originalText, op); !val.Success {
		if op.OperationType == model.AmendReplace && op.ReplacementText != "" && replacementAlreadyPresent(originalText, op) {
			return &ApplicationResult{Success: true, ModifiedText: originalText, AppliedFragment: op.ReplacementText, Confidence: 0.99}
		}
		return val
	}

	if cached := a.load(originalText, op); cached != nil {
		return cached
	}

	userPrompt := buildUserPrompt(originalText, op)
	resp, err := a.client.CallMessages(ctx, component, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, true)
	if err != nil {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: fmt.Sprintf("operation application failed: %v", err)}
	}

	var raw rawApplierResponse
	if jsonErr := json.Unmarshal([]byte(resp.Content), &raw); jsonErr != nil {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: fmt.Sprintf("invalid LLM response format: %v", jsonErr)}
	}

	result := parseResponse(raw, originalText)
	a.store(originalText, op, result)
	return result
}

type rawApplierResponse struct {
	Success         *bool   `json:"success"`
	ModifiedText    *string `json:"modified_text"`
	AppliedFragment string  `json:"applied_fragment"`
	ErrorMessage    string  `json:"error_message"`
	Confidence      float64 `json:"confidence"`
}

func parseResponse(raw rawApplierResponse, originalText string) *ApplicationResult {
	if raw.Success == nil || raw.ModifiedText == nil {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "invalid operation response format: missing success or modified_text"}
	}
	confidence := raw.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &ApplicationResult{
		Success:         *raw.Success,
		ModifiedText:    *raw.ModifiedText,
		AppliedFragment: raw.AppliedFragment,
		ErrorMessage:    raw.ErrorMessage,
		Confidence:      confidence,
	}
}

func buildUserPrompt(originalText string, op model.AmendmentOperation) string {
	targetText := op.TargetText
	if targetText == "" {
		targetText = "N/A"
	}
	replacementText := op.ReplacementText
	if replacementText == "" {
		replacementText = "N/A"
	}
	return fmt.Sprintf(
		"Texte original:\n%s\n\nType d'opération: %s\nTexte cible: %s\nTexte de remplacement: %s\nIndication de position: %s",
		originalText, op.OperationType, targetText, replacementText, op.PositionHintRaw,
	)
}

func (a *Applier) load(originalText string, op model.AmendmentOperation) *ApplicationResult {
	if a.cache == nil {
		return nil
	}
	var result ApplicationResult
	if hit, err := a.cache.Get(component, keyFor(originalText, op), &result); err == nil && hit {
		return &result
	}
	return nil
}

func (a *Applier) store(originalText string, op model.AmendmentOperation, result *ApplicationResult) {
	if a.cache == nil {
		return
	}
	_ = a.cache.Set(component, keyFor(originalText, op), result)
}

// --- input validation ---

func validateOperationInput(originalText string, op model.AmendmentOperation) *ApplicationResult {
	if op.OperationType == model.AmendReplace && op.TargetText != "" {
		if !fuzzyTextExists(originalText, op.TargetText) {
			msg := fmt.Sprintf("target text not found: %q", truncate(op.TargetText, 100))
			if similar := findSimilarText(originalText, op.TargetText, 3); len(similar) > 0 {
				msg += fmt.Sprintf(" similar matches found: %v", similar)
			}
			return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: msg}
		}
	}

	if op.PositionHintRaw != "" && indicatesMissingSection(originalText, op.PositionHintRaw) {
		return &ApplicationResult{
			Success:      false,
			ModifiedText: originalText,
			ErrorMessage: fmt.Sprintf("context misalignment: position %q refers to a non-existent section in text", op.PositionHintRaw),
		}
	}

	return &ApplicationResult{Success: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func fuzzyTextExists(text, target string) bool {
	if strings.Contains(text, target) {
		return true
	}
	variations := []string{
		strings.ReplaceAll(strings.ReplaceAll(target, `"`, "« "), `"`, " »"),
		strings.NewReplacer("« ", `"`, " »", `"`).Replace(target),
		strings.ReplaceAll(target, "  ", " "),
		strings.ReplaceAll(target, " ", ""),
	}
	for _, v := range variations {
		if v != target && strings.Contains(text, v) {
			return true
		}
	}
	return false
}

func findSimilarText(text, target string, maxMatches int) []string {
	targetWords := strings.Fields(strings.ToLower(target))
	if len(targetWords) < 2 {
		return nil
	}
	textLower := strings.ToLower(text)
	var matches []string
	windowPad := 50
	for i := 0; i+len(target) <= len(text); i++ {
		end := i + len(target) + windowPad
		if end > len(textLower) {
			end = len(textLower)
		}
		segment := textLower[i:end]
		wordMatches := 0
		for _, w := range targetWords {
			if strings.Contains(segment, w) {
				wordMatches++
			}
		}
		if wordMatches >= len(targetWords)/2 {
			snippetEnd := i + len(target) + 30
			if snippetEnd > len(text) {
				snippetEnd = len(text)
			}
			if snippetEnd-i > 100 {
				snippetEnd = i + 100
			}
			matches = append(matches, text[i:snippetEnd])
			if len(matches) >= maxMatches {
				break
			}
		}
	}
	return matches
}

var sectionRefRE = regexp.MustCompile(`(?i)(?:le|au|du)\s+([IVXLCDM]+|\d+°)`)

func indicatesMissingSection(text, positionHint string) bool {
	for _, m := range sectionRefRE.FindAllStringSubmatch(positionHint, -1) {
		section := m[1]
		if strings.Contains(text, section+".-") || strings.Contains(text, section+" ") || strings.Contains(text, section+"°") {
			continue
		}
		return true
	}
	return false
}

func replacementAlreadyPresent(originalText string, op model.AmendmentOperation) bool {
	candidate := originalText
	h := resolveHint(op)
	if h != nil && h.Type == "structure" && h.Section != "" && h.Point != "" {
		if block, ok := extractSectionPointBlock(originalText, h); ok {
			candidate = block
		}
	}
	normCand, _ := normalizeForMatch(candidate)
	normRepl, _ := normalizeForMatch(op.ReplacementText)
	if normRepl == "" {
		return false
	}
	return strings.Contains(normCand, normRepl)
}

// --- deterministic fast-paths ---

var fullAlineaTargetDetectRE = regexp.MustCompile(`(?i)^(?:le|la)\s+[a-zéèêîôûàç]+\s+alinéa\s*$`)

func isFullAlineaTarget(targetText string) bool {
	if targetText == "" {
		return false
	}
	t := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(targetText), "’", "'"))
	return fullAlineaTargetDetectRE.MatchString(t)
}

func (a *Applier) tryDeterministicApplication(originalText string, op model.AmendmentOperation) *ApplicationResult {
	h := resolveHint(op)

	if op.OperationType == model.AmendReplace && isFullAlineaTarget(op.TargetText) {
		if h != nil && h.Type == "alinea" {
			return applyAlineaRewrite(originalText, op.ReplacementText, h)
		}
		return nil
	}

	if (op.OperationType == model.AmendRewrite || op.OperationType == model.AmendReplace) && h != nil {
		if op.OperationType == model.AmendReplace && h.Type == "structure" && h.Point != "" && h.Section != "" {
			if scoped := applyScopedSectionPointReplace(originalText, op.TargetText, op.ReplacementText, h); scoped != nil {
				return scoped
			}
		}
		if (h.AfterWord != "" || h.AfterWords != "") && h.TokenAction == "replace_tail" {
			return applyAlineaTokenTailRewrite(originalText, op.ReplacementText, h)
		}
		if h.Type == "alinea" {
			return applyAlineaRewrite(originalText, op.ReplacementText, h)
		}
	}

	return nil
}

// hint is the deterministic-path view of a model.PositionHint, also
// accepting the natural-language fallbacks the original's
// _parse_position_hint recognized when no structured JSON was present.
type hint struct {
	Type                                      string
	AlineaIndex                               int
	AlineaSentinel                            string
	HasAlineaIndex                            bool
	Section, SectionSuffix, Point, PointSuffix string
	Placement                                 string
	AfterWord, AfterWords                     string
	TokenAction                               string
}

var (
	nlStructureAtRE    = regexp.MustCompile(`(?i)au\s+(?P<point>\d+)°\s+du\s+(?P<section>[IVXLCDM]+)`)
	nlStructureEndRE   = regexp.MustCompile(`(?i)à\s+la\s+fin\s+du\s+(?P<section>[IVXLCDM]+)`)
	nlStructureStartRE = regexp.MustCompile(`(?i)au\s+début\s+du\s+(?P<section>[IVXLCDM]+)`)
)

func resolveHint(op model.AmendmentOperation) *hint {
	if op.PositionHint != nil {
		h := &hint{
			Type:          op.PositionHint.Type,
			Section:       op.PositionHint.Section,
			SectionSuffix: op.PositionHint.SectionSuffix,
			Point:         op.PositionHint.Point,
			PointSuffix:   op.PositionHint.PointSuffix,
			Placement:     op.PositionHint.Placement,
			AfterWord:     op.PositionHint.AfterWord,
			AfterWords:    op.PositionHint.AfterWords,
			TokenAction:   op.PositionHint.TokenAction,
		}
		if n, sentinel, ok := op.PositionHint.AlineaIndexValue(); ok {
			h.HasAlineaIndex = true
			h.AlineaIndex = n
			h.AlineaSentinel = sentinel
		}
		return h
	}

	raw := op.PositionHintRaw
	if raw == "" {
		return nil
	}

	var parsed model.PositionHint
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Type != "" {
		op2 := op
		op2.PositionHint = &parsed
		return resolveHint(op2)
	}

	if m := nlStructureAtRE.FindStringSubmatch(raw); m != nil {
		return &hint{Type: "structure", Placement: "at", Point: m[1], Section: m[2]}
	}
	if m := nlStructureEndRE.FindStringSubmatch(raw); m != nil {
		return &hint{Type: "structure", Placement: "at_end", Section: m[1]}
	}
	if m := nlStructureStartRE.FindStringSubmatch(raw); m != nil {
		return &hint{Type: "structure", Placement: "at_start", Section: m[1]}
	}
	return nil
}

func splitIntoParagraphs(text string) []string {
	if strings.Contains(text, "\n\n") {
		return strings.Split(text, "\n\n")
	}
	var paragraphs []string
	var buf []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(buf) > 0 {
				paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(buf, "\n")))
				buf = nil
			}
			continue
		}
		buf = append(buf, line)
	}
	if len(buf) > 0 {
		paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(buf, "\n")))
	}
	return paragraphs
}

func joinParagraphs(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n")
}

func paragraphsOf(text string) []string {
	paragraphs := splitIntoParagraphs(text)
	if len(paragraphs) < 2 {
		var nonEmpty []string
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				nonEmpty = append(nonEmpty, line)
			}
		}
		paragraphs = nonEmpty
	}
	return paragraphs
}

func applyAlineaRewrite(originalText, replacementText string, h *hint) *ApplicationResult {
	if replacementText == "" {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "missing replacement_text for alinéa rewrite"}
	}
	paragraphs := paragraphsOf(originalText)
	if len(paragraphs) == 0 {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "could not segment text into alinéas"}
	}

	idx := 0
	switch {
	case h.HasAlineaIndex && h.AlineaIndex > 0:
		idx = h.AlineaIndex
	case h.AlineaSentinel == "last":
		idx = len(paragraphs)
	}
	if idx < 1 || idx > len(paragraphs) {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: fmt.Sprintf("invalid alinéa index: %d", idx)}
	}

	newParagraphs := append([]string(nil), paragraphs...)
	newParagraphs[idx-1] = strings.TrimSpace(replacementText)
	return &ApplicationResult{Success: true, ModifiedText: joinParagraphs(newParagraphs), AppliedFragment: strings.TrimSpace(replacementText), Confidence: 0.95}
}

var pointDigitRE = regexp.MustCompile(`\d+(?:[°ºo])`)

// SectionBounds locates the Roman-numeral major subdivision named by
// section within text, returning its byte span and content. Exported for
// reuse by pkg/refresolve's subsection carving, which needs the same
// section/point boundary logic to extract referenced fragments from
// fetched article text.
func SectionBounds(text string, section string) (start, end int, block string, ok bool) {
	sectionPattern := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(section) + `\s*(?:[.\-–—)]+)\s*`)
	loc := sectionPattern.FindStringIndex(text)
	if loc == nil {
		return 0, len(text), text, true // whole-text scope fallback, matching the original's warning path
	}
	romanLineRE := regexp.MustCompile(`(?m)^\s*[IVXLCDM]+\s*(?:[.\-–—)]+)\s*`)
	rest := text[loc[1]:]
	sectionEnd := len(text)
	if next := romanLineRE.FindStringIndex(rest); next != nil {
		sectionEnd = loc[1] + next[0]
	}
	return loc[0], sectionEnd, text[loc[0]:sectionEnd], true
}

// PointBounds locates the numbered point within a section's text,
// returning its byte span. Exported alongside SectionBounds for
// pkg/refresolve reuse.
func PointBounds(sectionText, point string) (start, end int, ok bool) {
	pointRE := regexp.MustCompile(regexp.QuoteMeta(point) + `(?:[°ºo])`)
	loc := pointRE.FindStringIndex(sectionText)
	if loc == nil {
		return 0, 0, false
	}
	pStart := loc[0]
	rest := sectionText[loc[0]+len(point):]
	pEnd := len(sectionText)
	if next := pointDigitRE.FindStringIndex(rest); next != nil {
		pEnd = loc[0] + len(point) + next[0]
	}
	return pStart, pEnd, true
}

func extractSectionPointBlock(originalText string, h *hint) (string, bool) {
	if h.Section == "" || h.Point == "" {
		return "", false
	}
	_, _, sectionText, ok := SectionBounds(originalText, h.Section)
	if !ok {
		return "", false
	}
	pStart, pEnd, ok := PointBounds(sectionText, h.Point)
	if !ok {
		return "", false
	}
	return sectionText[pStart:pEnd], true
}

func applyScopedSectionPointReplace(originalText, targetText, replacementText string, h *hint) *ApplicationResult {
	if h.Section == "" || h.Point == "" || targetText == "" || replacementText == "" {
		return nil
	}

	secStart, secEnd, sectionText, ok := SectionBounds(originalText, h.Section)
	if !ok {
		return nil
	}
	pStart, pEnd, ok := PointBounds(sectionText, h.Point)
	if !ok {
		return nil
	}
	pointBlock := sectionText[pStart:pEnd]

	normBlock, blockMap := normalizeForMatch(pointBlock)
	normTarget, _ := normalizeForMatch(targetText)

	nstart, nend, found := findSpan(normBlock, normTarget)
	if !found {
		for _, candidate := range generateRelaxedTargets(normTarget) {
			if nstart, nend, found = findSpan(normBlock, candidate); found {
				break
			}
		}
	}
	if !found {
		return nil
	}

	// findSpan returns byte offsets into normBlock; blockMap is indexed by rune.
	rStart := utf8.RuneCountInString(normBlock[:nstart])
	rEnd := rStart + utf8.RuneCountInString(normBlock[nstart:nend])
	if rEnd == rStart || rEnd-1 >= len(blockMap) {
		return nil
	}
	ostart := blockMap[rStart]
	_, lastSize := utf8.DecodeRuneInString(pointBlock[blockMap[rEnd-1]:])
	oend := blockMap[rEnd-1] + lastSize

	newBlock := pointBlock[:ostart] + replacementText + pointBlock[oend:]
	newSection := sectionText[:pStart] + newBlock + sectionText[pEnd:]
	modified := originalText[:secStart] + newSection + originalText[secEnd:]
	return &ApplicationResult{Success: true, ModifiedText: modified, AppliedFragment: strings.TrimSpace(replacementText), Confidence: 0.9}
}

func findSpan(haystack, needle string) (start, end int, ok bool) {
	idx := strings.Index(haystack, needle)
	if idx == -1 {
		return 0, 0, false
	}
	return idx, idx + len(needle), true
}

func applyAlineaTokenTailRewrite(originalText, replacementText string, h *hint) *ApplicationResult {
	if replacementText == "" {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "missing replacement_text for token-tail rewrite"}
	}
	paragraphs := paragraphsOf(originalText)
	if len(paragraphs) == 0 {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "could not segment text into alinéas"}
	}

	requestedIdx := 0
	if h.HasAlineaIndex && h.AlineaIndex > 0 {
		requestedIdx = h.AlineaIndex
	} else if h.AlineaSentinel == "last" {
		requestedIdx = len(paragraphs)
	}

	token := h.AfterWord
	if token == "" {
		token = h.AfterWords
	}
	if token == "" {
		return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: "missing after_word token for tail rewrite"}
	}

	idx := 0
	pos := -1
	if requestedIdx >= 1 && requestedIdx <= len(paragraphs) {
		idx = requestedIdx
		pos = findTokenPosition(paragraphs[idx-1], token)
	}

	if pos == -1 {
		type candidate struct{ idx, pos int }
		var matches []candidate
		for j, p := range paragraphs {
			if tp := findTokenPosition(p, token); tp != -1 {
				matches = append(matches, candidate{idx: j + 1, pos: tp})
			}
		}
		if len(matches) == 0 {
			return &ApplicationResult{Success: false, ModifiedText: originalText, ErrorMessage: fmt.Sprintf("anchor token not found in any alinéa: %q", token)}
		}
		if requestedIdx >= 1 {
			best := matches[0]
			for _, c := range matches[1:] {
				if abs(c.idx-requestedIdx) < abs(best.idx-requestedIdx) {
					best = c
				}
			}
			idx, pos = best.idx, best.pos
		} else {
			last := matches[len(matches)-1]
			idx, pos = last.idx, last.pos
		}
	}

	para := paragraphs[idx-1]
	prefix := strings.TrimRight(para[:pos], " \t")
	newPara := strings.TrimSpace(prefix + " " + strings.TrimSpace(replacementText))
	newParagraphs := append([]string(nil), paragraphs...)
	newParagraphs[idx-1] = newPara
	return &ApplicationResult{Success: true, ModifiedText: joinParagraphs(newParagraphs), AppliedFragment: strings.TrimSpace(replacementText), Confidence: 0.95}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func findTokenPosition(text, token string) int {
	escaped := regexp.QuoteMeta(token)
	patterns := []string{
		`(?i)\b` + escaped + `\b`,
		`(?i)` + escaped,
		`(?i)` + strings.ReplaceAll(escaped, `\ `, `\s+`),
	}
	for _, pat := range patterns {
		if loc := regexp.MustCompile(pat).FindStringIndex(text); loc != nil {
			return loc[1]
		}
	}
	return -1
}

// --- normalization for robust substring matching ---

var (
	hyphenLike = map[rune]bool{
		'‐': true, '‑': true, '‒': true, '–': true,
		'—': true, '―': true, '−': true,
	}
	frenchQuotes = map[rune]rune{'«': '"', '»': '"'}
)

// normalizeForMatch applies NFKC, collapses whitespace (including NBSP),
// normalizes hyphen-like characters and French quotes, and lowercases,
// returning the normalized text alongside an index map back to the
// original string's byte offsets (index_map[i] is the original offset of
// normalized rune i; runes produced by one NFKC segment share that
// segment's starting offset).
func normalizeForMatch(text string) (string, []int) {
	var src []rune
	var srcOffsets []int
	var it norm.Iter
	it.InitString(norm.NFKC, text)
	for !it.Done() {
		segStart := it.Pos()
		for _, r := range string(it.Next()) {
			src = append(src, r)
			srcOffsets = append(srcOffsets, segStart)
		}
	}

	var out []rune
	var indexMap []int
	lastWasSpace := false

	for i, r := range src {
		orig := srcOffsets[i]
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				out = append(out, ' ')
				indexMap = append(indexMap, orig)
				lastWasSpace = true
			}
			continue
		}
		lastWasSpace = false
		if hyphenLike[r] {
			out = append(out, '-')
			indexMap = append(indexMap, orig)
			continue
		}
		if mapped, ok := frenchQuotes[r]; ok {
			out = append(out, mapped)
			indexMap = append(indexMap, orig)
			continue
		}
		out = append(out, unicode.ToLower(r))
		indexMap = append(indexMap, orig)
	}

	for len(out) > 0 && out[0] == ' ' {
		out = out[1:]
		indexMap = indexMap[1:]
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
		indexMap = indexMap[:len(indexMap)-1]
	}

	return string(out), indexMap
}

func generateRelaxedTargets(normTarget string) []string {
	variants := []string{normTarget}
	prevuForms := []string{"prévu", "prévus", "prévue", "prévues", "prevu", "prevus", "prevue", "prevues"}
	var withPrevu []string
	for _, v := range variants {
		added := false
		for _, token := range []string{"prévu", "prevu"} {
			if strings.Contains(v, token) {
				for _, form := range prevuForms {
					withPrevu = append(withPrevu, strings.ReplaceAll(v, token, form))
				}
				added = true
			}
		}
		if !added {
			withPrevu = append(withPrevu, v)
		}
	}
	variants = dedupe(withPrevu)

	var withArticles []string
	withArticles = append(withArticles, variants...)
	for _, v := range variants {
		if strings.Contains(v, "article ") {
			withArticles = append(withArticles, strings.ReplaceAll(v, "article ", "articles "))
		}
		if strings.Contains(v, "articles ") {
			withArticles = append(withArticles, strings.ReplaceAll(v, "articles ", "article "))
		}
	}
	return dedupe(withArticles)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
