// Package decompose implements InstructionDecomposer: turning a chunk's
// free-text amendment instruction into an ordered list of atomic
// AmendmentOperations, each carrying a structured position hint (spec.md
// §3.4, §6). The primary path is an LLM JSON-mode call; when the LLM
// returns zero usable operations, a set of deterministic heuristics
// infers a single operation from common instruction patterns rather than
// failing outright.
package decompose

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const component = "instruction_decomposer"

const systemPrompt = `Vous décomposez une instruction d'amendement législatif français en opérations atomiques. Répondez en JSON avec une clé "operations": une liste d'objets ayant "operation_type" (REPLACE, DELETE, INSERT, ADD, REWRITE, ou ABROGATE), "target_text", "replacement_text", "position_hint" (une chaîne, éventuellement un objet JSON sérialisé décrivant une ancre d'alinéa, de structure ou de mot), "sequence_order" (entier à partir de 1), et "confidence_score" (0 à 1).`

// Decomposer parses amendment instructions into AmendmentOperations.
type Decomposer struct {
	client *llm.Client
	cache  *cache.Cache
}

// New creates a Decomposer. cache may be nil to disable caching.
func New(client *llm.Client, c *cache.Cache) *Decomposer {
	return &Decomposer{client: client, cache: c}
}

type rawOperation struct {
	OperationType   string          `json:"operation_type"`
	TargetText      string          `json:"target_text"`
	ReplacementText string          `json:"replacement_text"`
	PositionHint    json.RawMessage `json:"position_hint"`
	SequenceOrder   int             `json:"sequence_order"`
	ConfidenceScore float64         `json:"confidence_score"`
}

type rawResponse struct {
	Operations []rawOperation `json:"operations"`
}

type cacheKey struct {
	Instruction string `json:"amendment_instruction"`
}

// ParseInstruction decomposes instruction into ordered AmendmentOperations.
func (d *Decomposer) ParseInstruction(ctx context.Context, instruction string) ([]model.AmendmentOperation, error) {
	key := cacheKey{Instruction: instruction}
	if d.cache != nil {
		var cached []model.AmendmentOperation
		if hit, err := d.cache.Get(component, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	var resp rawResponse
	ok, err := d.client.CallJSON(ctx, component, systemPrompt, map[string]string{"instruction": instruction}, &resp)

	var ops []model.AmendmentOperation
	if err != nil || !ok || len(resp.Operations) == 0 {
		ops = inferFallbackOperation(instruction)
	} else {
		ops = parseOperations(resp.Operations)
		if len(ops) == 0 {
			ops = inferFallbackOperation(instruction)
		}
	}

	ops = normalizeOperations(ops, instruction)

	if d.cache != nil {
		_ = d.cache.Set(component, key, ops)
	}
	return ops, nil
}

func parseOperations(raw []rawOperation) []model.AmendmentOperation {
	ops := make([]model.AmendmentOperation, 0, len(raw))
	for _, r := range raw {
		opType := model.AmendmentOperationType(strings.ToUpper(r.OperationType))
		targetText := r.TargetText
		replacementText := r.ReplacementText

		if opType == model.AmendReplace && targetText == "" && replacementText != "" {
			opType = model.AmendRewrite
		}

		op := model.AmendmentOperation{
			OperationType:   opType,
			TargetText:      targetText,
			ReplacementText: replacementText,
			PositionHintRaw: rawMessageToString(r.PositionHint),
			SequenceOrder:   r.SequenceOrder,
			ConfidenceScore: r.ConfidenceScore,
		}
		if err := op.Validate(); err != nil {
			continue // skip invalid operations rather than abort the whole decomposition
		}
		ops = append(ops, op)
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].SequenceOrder < ops[j].SequenceOrder })
	return ops
}

func rawMessageToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// --- deterministic fallback heuristics ---

var (
	versioningPrefixRE = regexp.MustCompile(`(?i)^[a-z]*\d*[°)]*\s*(?:\([^)]*\))?\s*`)
	quotesRE           = regexp.MustCompile(`«\s*([^»]+)\s*»`)
	bulletSplitRE      = regexp.MustCompile(`–\s*`)
)

func inferFallbackOperation(instruction string) []model.AmendmentOperation {
	cleaned := strings.TrimSpace(versioningPrefixRE.ReplaceAllString(instruction, ""))
	cleanedLower := strings.ToLower(cleaned)

	if strings.Contains(cleanedLower, "est ainsi modifié") && strings.Contains(cleaned, "–") {
		return parseMultiStepInstruction(cleaned)
	}

	if (strings.Contains(cleanedLower, "est remplacé par") || strings.Contains(cleanedLower, "sont remplacés par")) {
		quotes := quotesRE.FindAllStringSubmatch(cleaned, -1)
		if len(quotes) >= 2 {
			return []model.AmendmentOperation{{
				OperationType:   model.AmendReplace,
				TargetText:      strings.TrimSpace(quotes[0][1]),
				ReplacementText: strings.TrimSpace(quotes[1][1]),
				PositionHintRaw: "inferred from instruction",
				SequenceOrder:   1,
				ConfidenceScore: 0.7,
			}}
		}
	}

	if strings.Contains(cleanedLower, "sont supprimés") || strings.Contains(cleanedLower, "est supprimé") ||
		strings.Contains(cleanedLower, "sont abrogés") || strings.Contains(cleanedLower, "est abrogé") {
		return []model.AmendmentOperation{{
			OperationType:   model.AmendDelete,
			PositionHintRaw: "inferred from instruction",
			SequenceOrder:   1,
			ConfidenceScore: 0.8,
		}}
	}

	if cleaned == "" && strings.Contains(strings.ToLower(instruction), "(supprimé)") {
		return []model.AmendmentOperation{{
			OperationType:   model.AmendDelete,
			PositionHintRaw: "inferred from instruction",
			SequenceOrder:   1,
			ConfidenceScore: 0.9,
		}}
	}

	return nil
}

func parseMultiStepInstruction(instruction string) []model.AmendmentOperation {
	parts := bulletSplitRE.Split(instruction, -1)
	if len(parts) == 0 {
		return nil
	}
	context := strings.TrimSpace(parts[0])
	positionHint := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(context, " :"), " est ainsi modifié :"))

	var ops []model.AmendmentOperation
	seq := 1
	for _, part := range parts[1:] {
		part = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(part), ";"))
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)

		switch {
		case strings.Contains(lower, "sont remplacés par") || strings.Contains(lower, "est remplacé par"):
			quotes := quotesRE.FindAllStringSubmatch(part, -1)
			if len(quotes) < 2 {
				continue
			}
			hint := positionHint
			if strings.Contains(lower, "à la fin") {
				hint += ", à la fin"
			}
			ops = append(ops, model.AmendmentOperation{
				OperationType:   model.AmendReplace,
				TargetText:      strings.TrimSpace(quotes[0][1]),
				ReplacementText: strings.TrimSpace(quotes[1][1]),
				PositionHintRaw: hint,
				SequenceOrder:   seq,
				ConfidenceScore: 0.8,
			})
			seq++
		case strings.Contains(lower, "sont supprimés") || strings.Contains(lower, "est supprimé"):
			var targetText string
			if quotes := quotesRE.FindStringSubmatch(part); quotes != nil {
				targetText = strings.TrimSpace(quotes[1])
			}
			ops = append(ops, model.AmendmentOperation{
				OperationType:   model.AmendDelete,
				TargetText:      targetText,
				PositionHintRaw: positionHint,
				SequenceOrder:   seq,
				ConfidenceScore: 0.8,
			})
			seq++
		}
	}
	return ops
}

// --- position hint normalization ---

var ordinalToIndex = map[string]int{
	"premier": 1, "première": 1,
	"deuxième": 2, "second": 2, "seconde": 2,
	"troisième": 3, "quatrième": 4, "cinquième": 5,
	"sixième": 6, "septième": 7, "huitième": 8, "neuvième": 9, "dixième": 10,
}

var (
	alineaAnchorRE    = regexp.MustCompile(`(?i)(?:le|au|du)\s+([a-zéèêîôûàç]+)\s+alinéa`)
	dernierAlineaRE   = regexp.MustCompile(`(?i)dernier\s+alinéa`)
	relativeAlineaRE  = regexp.MustCompile(`(?i)alinéa\s+précédent`)
	fullAlineaTargetRE = regexp.MustCompile(`(?i)^(?:le|la)\s+([a-zéèêîôûàç]+)\s+alinéa\s*$`)
	afterWordRE        = regexp.MustCompile(`(?i)après\s+le\s+mot\s*:\s*«\s*([^»]+)\s*»`)
	afterWordsRE       = regexp.MustCompile(`(?i)après\s+les\s+mots\s*:\s*«\s*([^»]+)\s*»`)
	beforeWordRE       = regexp.MustCompile(`(?i)avant\s+le\s+mot\s*:\s*«\s*([^»]+)\s*»`)
	beforeWordsRE      = regexp.MustCompile(`(?i)avant\s+les\s+mots\s*:\s*«\s*([^»]+)\s*»`)
	tailOfAlineaRE     = regexp.MustCompile(`(?i)la\s+fin\s+du\s+.*alinéa`)

	ordinalWord = `premier|première|deuxième|second|seconde|troisième|quatrième|cinquième|sixième|septième|huitième|neuvième|dixième`
	structuralPatterns = []struct {
		re        *regexp.Regexp
		placement string
	}{
		{regexp.MustCompile(`(?i)après\s+le\s+(?P<point>\d+)°(?:\s+(?P<point_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\s+du\s+(?P<section>[IVXLCDM]+)(?:\s+(?P<section_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\b`), "after"},
		{regexp.MustCompile(`(?i)avant\s+le\s+(?P<point>\d+)°(?:\s+(?P<point_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\s+du\s+(?P<section>[IVXLCDM]+)(?:\s+(?P<section_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\b`), "before"},
		{regexp.MustCompile(`(?i)au\s+(?P<point>\d+)°(?:\s+(?P<point_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|décies))?\s+du\s+(?P<section>[IVXLCDM]+)(?:\s+(?P<section_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|décies))?\b`), "at"},
		{regexp.MustCompile(`(?i)à\s+la\s+fin\s+du\s+(?P<section>[IVXLCDM]+)(?:\s+(?P<section_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\b`), "at_end"},
		{regexp.MustCompile(`(?i)au\s+début\s+du\s+(?P<section>[IVXLCDM]+)(?:\s+(?P<section_suffix>bis|ter|quater|quinquies|sexies|septies|octies|nonies|d[ée]cies))?\b`), "at_start"},
	}
)

// normalizeOperations converts natural-language position cues in the
// instruction into the structured PositionHint JSON grammar (spec.md §6),
// attaching it to every operation whose position_hint would otherwise
// stay free text.
func normalizeOperations(ops []model.AmendmentOperation, instruction string) []model.AmendmentOperation {
	instr := strings.ReplaceAll(instruction, "’", "'")

	alineaAnchor, hasAlineaAnchor := detectAlineaAnchor(instr)
	sentencePos := detectSentencePosition(instr)
	structural := detectStructuralAnchor(instr)
	tokenAnchor, hasToken := detectTokenAnchor(instr)
	relativeAlinea := relativeAlineaRE.MatchString(instr)

	for i := range ops {
		op := &ops[i]
		hint := model.PositionHint{}
		touched := false

		if hasToken && isTokenEligible(op.OperationType) {
			applyTokenAnchor(&hint, tokenAnchor)
			if hint.Scope == "" {
				hint.Scope = "sentence"
			}
			if tailOfAlineaRE.MatchString(instr) && hint.TokenAction == "" {
				hint.TokenAction = "replace_tail"
			}
			touched = true
		}

		looksLikeAlinea := looksLikeAlineaTarget(op, instr)
		if looksLikeAlinea || hasAlineaAnchor || relativeAlinea {
			if op.OperationType == model.AmendReplace && isFullAlineaTarget(op.TargetText) {
				op.OperationType = model.AmendRewrite
				op.TargetText = ""
			}
			if hasAlineaAnchor {
				hint.Type = "alinea"
				hint.AlineaIndex, _ = json.Marshal(alineaAnchor)
				touched = true
			} else if relativeAlinea {
				hint.Type = "alinea"
				hint.AlineaIndex, _ = json.Marshal("prev")
				touched = true
			}
		}

		if structural != nil {
			mergeStructural(&hint, structural)
			touched = true
		}

		if sentencePos != "" && hint.SentencePosition == "" {
			hint.SentencePosition = sentencePos
			touched = true
		}

		lower := strings.ToLower(instr)
		if (strings.Contains(lower, "après le mot") || strings.Contains(lower, "après les mots")) &&
			strings.Contains(lower, "la fin du") && strings.Contains(lower, "alinéa") {
			if hint.TokenAction == "" {
				hint.TokenAction = "replace_tail"
				touched = true
			}
			if hasAlineaAnchor && len(hint.AlineaIndex) == 0 {
				hint.AlineaIndex, _ = json.Marshal(alineaAnchor)
				touched = true
			}
		}

		if touched {
			op.PositionHint = &hint
			if encoded, err := json.Marshal(hint); err == nil {
				op.PositionHintRaw = string(encoded)
			}
		}
	}
	return ops
}

func isTokenEligible(t model.AmendmentOperationType) bool {
	switch t {
	case model.AmendInsert, model.AmendReplace, model.AmendAdd, model.AmendRewrite:
		return true
	}
	return false
}

type tokenAnchor struct {
	afterWord, afterWords, beforeWord, beforeWords string
}

func detectTokenAnchor(instr string) (tokenAnchor, bool) {
	if m := afterWordRE.FindStringSubmatch(instr); m != nil {
		return tokenAnchor{afterWord: strings.TrimSpace(m[1])}, true
	}
	if m := afterWordsRE.FindStringSubmatch(instr); m != nil {
		return tokenAnchor{afterWords: strings.TrimSpace(m[1])}, true
	}
	if m := beforeWordRE.FindStringSubmatch(instr); m != nil {
		return tokenAnchor{beforeWord: strings.TrimSpace(m[1])}, true
	}
	if m := beforeWordsRE.FindStringSubmatch(instr); m != nil {
		return tokenAnchor{beforeWords: strings.TrimSpace(m[1])}, true
	}
	return tokenAnchor{}, false
}

func applyTokenAnchor(hint *model.PositionHint, t tokenAnchor) {
	hint.AfterWord = t.afterWord
	hint.AfterWords = t.afterWords
	hint.BeforeWord = t.beforeWord
	hint.BeforeWords = t.beforeWords
}

func detectAlineaAnchor(instr string) (any, bool) {
	if m := alineaAnchorRE.FindStringSubmatch(instr); m != nil {
		if idx, ok := ordinalToIndex[strings.ToLower(m[1])]; ok {
			return idx, true
		}
	}
	if dernierAlineaRE.MatchString(instr) {
		return "last", true
	}
	return nil, false
}

func looksLikeAlineaTarget(op *model.AmendmentOperation, instruction string) bool {
	text := op.TargetText + " " + op.PositionHintRaw + " " + instruction
	return regexp.MustCompile(`(?i)\balinéa\b`).MatchString(text)
}

func isFullAlineaTarget(targetText string) bool {
	if targetText == "" {
		return false
	}
	t := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(targetText), "’", "'"))
	m := fullAlineaTargetRE.FindStringSubmatch(t)
	if m == nil {
		return false
	}
	_, isOrdinal := ordinalToIndex[m[1]]
	return isOrdinal || m[1] == "dernier"
}

func detectSentencePosition(instr string) string {
	s := strings.ToLower(instr)
	switch {
	case strings.Contains(s, "première phrase"):
		return "first"
	case strings.Contains(s, "seconde phrase"), strings.Contains(s, "deuxième phrase"):
		return "second"
	case strings.Contains(s, "dernière phrase"):
		return "last"
	}
	return ""
}

type structuralAnchor struct {
	section, sectionSuffix, point, pointSuffix, placement string
}

func detectStructuralAnchor(instr string) *structuralAnchor {
	for _, p := range structuralPatterns {
		m := p.re.FindStringSubmatch(instr)
		if m == nil {
			continue
		}
		names := p.re.SubexpNames()
		a := &structuralAnchor{placement: p.placement}
		for i, name := range names {
			if name == "" || m[i] == "" {
				continue
			}
			switch name {
			case "section":
				a.section = m[i]
			case "section_suffix":
				a.sectionSuffix = m[i]
			case "point":
				a.point = m[i]
			case "point_suffix":
				a.pointSuffix = m[i]
			}
		}
		return a
	}
	return nil
}

func mergeStructural(hint *model.PositionHint, a *structuralAnchor) {
	hint.Type = "structure"
	hint.Section = a.section
	hint.SectionSuffix = a.sectionSuffix
	hint.Point = a.point
	hint.PointSuffix = a.pointSuffix
	hint.Placement = a.placement
}
