// Package splitter implements BillSplitter: a multi-pass, regex-driven
// split of a French legislative bill's Markdown-rendered text into atomic
// BillChunk units (spec.md §3.1). It splits only — target article
// identification is TargetArticleIdentifier's job (pkg/identify); this
// package emits only lightweight inheritance hints for it to use.
//
// French legislative text is highly variable in formatting: numbered
// points and major subdivisions may be indented or carry extra
// whitespace, so every pattern here is whitespace-tolerant. When nothing
// else matches, the whole article becomes one chunk — legal text can
// always be unpredictable, so the fallback must never be empty-handed.
package splitter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coolbeans/regula/pkg/model"
)

var (
	titreRE   = regexp.MustCompile(`(?m)^#\s*TITRE\s+([IVXLCDM\p{L}]+)`)
	articleRE = regexp.MustCompile(`(?m)^##\s*Article\s+([\p{L}\p{N}]+)`)

	majorSubdivRE = regexp.MustCompile(`(?m)^([IVXLCDM]+(?:\s*et\s*[IVXLCDM]+)*(?:\s*\(nouveau\))?)\.\s*[–-]?(.*)`)

	ordinals         = `bis|ter|quater|quinquies|sexies|septies|octies|nonies|décies`
	numberedPointRE  = regexp.MustCompile(`(?m)^[ \t]*(\d+°[A-Z]?(?:\s*(?:` + ordinals + `))?(?:\s*à\s*\d+°[A-Z]?(?:\s*(?:` + ordinals + `))?)?(?:\s*\(nouveau\))?)\s*(.*)`)

	letteredSubdivRE = regexp.MustCompile(`(?mi)^[ \t]*([a-z]+\)|aaa\)|aa\)|[a-z]+(?:,\s*[a-z]+)*\s+et\s+[a-z]+\))(?:\s*\(nouveau\)|\s*\(Supprimés?\))?`)

	hyphenatedOperationRE = regexp.MustCompile(`(?m)^[ \t]*[-–]\s*(.*)`)

	nouveauSuffixRE = regexp.MustCompile(`\s*\(nouveau\)`)
	trailingLRE     = regexp.MustCompile(`\s*L$`)
	etSplitRE       = regexp.MustCompile(`\s*et\s*`)
	whitespaceRunRE = regexp.MustCompile(`\s+`)

	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Le\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+ainsi\s+modifié`),
		regexp.MustCompile(`(?i)Le\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+modifié`),
		regexp.MustCompile(`(?i)[IVX]+\.\s*[–-]?\s*Le\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+ainsi\s+modifié`),
		regexp.MustCompile(`(?i)[IVX]+\.\s*[–-]?\s*Le\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+modifié`),
		regexp.MustCompile(`(?i)Le\s+[\p{L}\s']+\s+du\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+ainsi\s+modifié`),
		regexp.MustCompile(`(?i)Le\s+[\p{L}\s']+\s+du\s+(code\s+[\p{L}\s,\-']+?)\s+est\s+modifié`),
	}

	inheritancePatterns = []struct {
		re *regexp.Regexp
		op model.OperationType
	}{
		{regexp.MustCompile(`(?i)L'article\s+(L\.\s*[\d\-]+)\s+est\s+ainsi\s+modifié`), model.OpModify},
		{regexp.MustCompile(`(?i)'article\s+(L\.\s*[\d\-]+)\s+est\s+ainsi\s+modifié`), model.OpModify},
		{regexp.MustCompile(`(?i)Après\s+l'article\s+L\.\s*[\d\-]+,\s+il\s+est\s+inséré\s+un\s+article\s+(L\.\s*[\d\-]+)`), model.OpInsert},
		{regexp.MustCompile(`(?i)Après\s+'article\s+L\.\s*[\d\-]+,\s+il\s+est\s+inséré\s+un\s+article\s+(L\.\s*[\d\-]+)`), model.OpInsert},
		{regexp.MustCompile(`(?i)Après\s+l'article\s+(L\.\s*[\d\-]+),\s+il\s+est\s+inséré`), model.OpInsert},
		{regexp.MustCompile(`(?i)Après\s+'article\s+(L\.\s*[\d\-]+),\s+il\s+est\s+inséré`), model.OpInsert},
		{regexp.MustCompile(`(?i)L'article\s+(L\.\s*[\d\-]+)\s+est\s+abrogé`), model.OpAbrogate},
		{regexp.MustCompile(`(?i)'article\s+(L\.\s*[\d\-]+)\s+est\s+abrogé`), model.OpAbrogate},
		{regexp.MustCompile(`(?i)Les\s+articles\s+(L\.\s*[\d\-]+).*sont\s+abrogés`), model.OpAbrogate},
	}
)

// Splitter splits bill text into atomic BillChunks.
type Splitter struct{}

// New creates a Splitter. It carries no state or configuration — the
// algorithm is purely structural.
func New() *Splitter { return &Splitter{} }

// Split partitions text into BillChunks, preserving TITRE/Article/major
// subdivision/numbered point/lettered subdivision context on every chunk.
func (s *Splitter) Split(text string) []model.BillChunk {
	var chunks []model.BillChunk

	titreSpans := findSpans(titreRE, text)
	titreSpans = append(titreSpans, span{start: len(text), end: len(text)})

	for ti := 0; ti < len(titreSpans)-1; ti++ {
		t := titreSpans[ti]
		titreText := ""
		if t.label != "" {
			titreText = strings.TrimSpace(t.label)
		}
		titreBlock := text[t.end:titreSpans[ti+1].start]

		articleSpans := findCapturedSpans(articleRE, titreBlock)
		articleSpans = append(articleSpans, span{start: len(titreBlock), end: len(titreBlock)})

		for ai := 0; ai < len(articleSpans)-1; ai++ {
			a := articleSpans[ai]
			articleLabel := ""
			if a.label != "" {
				articleLabel = fmt.Sprintf("Article %s", a.label)
			}
			articleBlock := titreBlock[a.end:articleSpans[ai+1].start]

			introEnd := firstOf(articleBlock, majorSubdivRE, numberedPointRE)
			articleIntro := strings.TrimSpace(articleBlock[:introEnd])
			rest := articleBlock[introEnd:]
			articleCode := extractCode(articleIntro)

			baseOffset := t.end + a.end

			majorSubdivs := majorSubdivRE.FindAllStringSubmatchIndex(rest, -1)
			if len(majorSubdivs) > 0 {
				chunks = append(chunks, s.splitMajorSubdivisions(rest, majorSubdivs, titreText, articleLabel, articleIntro, articleCode, baseOffset+introEnd)...)
				continue
			}

			numberedPoints := numberedPointRE.FindAllStringSubmatchIndex(rest, -1)
			if len(numberedPoints) > 0 {
				chunks = append(chunks, s.splitNumberedPoints(rest, numberedPoints, titreText, articleLabel, articleIntro, nil, nil, articleCode, baseOffset+introEnd)...)
				continue
			}

			chunkText := strings.TrimSpace(rest)
			if chunkText == "" && articleIntro != "" {
				chunkText = articleIntro
			}
			if chunkText == "" {
				continue
			}
			hierarchy := filterEmpty(titreText, articleLabel)
			chunks = append(chunks, model.BillChunk{
				Text:             chunkText,
				TitreText:        titreText,
				ArticleLabel:     articleLabel,
				ArticleIntro:     articleIntro,
				HierarchyPath:    hierarchy,
				ChunkID:          strings.Join(hierarchy, "::"),
				StartPos:         baseOffset,
				EndPos:           baseOffset + len(articleBlock),
			})
		}
	}
	return chunks
}

func (s *Splitter) splitMajorSubdivisions(rest string, matches [][]int, titreText, articleLabel, articleIntro, articleCode string, baseOffset int) []model.BillChunk {
	var out []model.BillChunk
	for mi, m := range matches {
		msStart := m[0]
		msEnd := len(rest)
		if mi+1 < len(matches) {
			msEnd = matches[mi+1][0]
		}
		msLabelRaw := strings.TrimSpace(rest[m[2]:m[3]])
		msIntro := strings.TrimSpace(rest[m[4]:m[5]])
		msBlock := rest[m[0]:msEnd]

		labelsRaw := splitFiltered(etSplitRE, msLabelRaw)
		msCode := extractCode(msIntro)
		if msCode == "" {
			msCode = articleCode
		}

		for _, rawLabel := range labelsRaw {
			label := normalizeLabel(rawLabel)

			msNumberedPoints := numberedPointRE.FindAllStringSubmatchIndex(msBlock, -1)
			if len(msNumberedPoints) > 0 {
				out = append(out, s.splitNumberedPoints(msBlock, msNumberedPoints, titreText, articleLabel, articleIntro, &label, &msIntro, msCode, baseOffset+msStart)...)
				continue
			}

			chunkText := strings.TrimSpace(msBlock)
			hierarchy := filterEmpty(titreText, articleLabel, label)
			out = append(out, model.BillChunk{
				Text:                      chunkText,
				TitreText:                 titreText,
				ArticleLabel:              articleLabel,
				ArticleIntro:              articleIntro,
				MajorSubdivisionLabel:     label,
				MajorSubdivisionIntro:     msIntro,
				HierarchyPath:             hierarchy,
				ChunkID:                   strings.Join(hierarchy, "::"),
				StartPos:                  baseOffset + msStart,
				EndPos:                    baseOffset + msEnd,
			})
		}
	}
	return out
}

func (s *Splitter) splitNumberedPoints(block string, matches [][]int, titreText, articleLabel, articleIntro string, msLabel, msIntro *string, code string, baseOffset int) []model.BillChunk {
	var out []model.BillChunk
	for ni, m := range matches {
		npEnd := len(block)
		if ni+1 < len(matches) {
			npEnd = matches[ni+1][0]
		}
		chunkText := strings.TrimSpace(block[m[0]:npEnd])
		labelRaw := strings.TrimSpace(block[m[2]:m[3]])
		label := normalizeLabel(labelRaw)
		var intro string
		if m[4] >= 0 {
			intro = strings.TrimSpace(block[m[4]:m[5]])
		}

		var inherited *model.TargetArticle
		if hint := inheritanceHint(intro, code); hint != nil {
			inherited = hint
		}

		hierarchy := filterEmpty(titreText, articleLabel, derefOr(msLabel, ""), label)
		chunkID := strings.Join(hierarchy, "::")

		lettered := letteredSubdivRE.FindAllStringSubmatchIndex(chunkText, -1)
		if len(lettered) == 0 {
			out = append(out, model.BillChunk{
				Text:                   chunkText,
				TitreText:              titreText,
				ArticleLabel:           articleLabel,
				ArticleIntro:           articleIntro,
				MajorSubdivisionLabel:  derefOr(msLabel, ""),
				MajorSubdivisionIntro:  derefOr(msIntro, ""),
				NumberedPointLabel:     label,
				NumberedPointIntro:     intro,
				HierarchyPath:          hierarchy,
				ChunkID:                chunkID,
				StartPos:               baseOffset + m[0],
				EndPos:                 baseOffset + npEnd,
				InheritedTargetArticle: inherited,
			})
			continue
		}

		for li, lm := range lettered {
			subEnd := len(chunkText)
			if li+1 < len(lettered) {
				subEnd = lettered[li+1][0]
			}
			subLabel := strings.TrimSpace(chunkText[lm[2]:lm[3]])
			subText := consolidateHyphenated(strings.TrimSpace(chunkText[lm[0]:subEnd]))

			subHierarchy := append(append([]string{}, hierarchy...), subLabel)
			out = append(out, model.BillChunk{
				Text:                     subText,
				TitreText:                titreText,
				ArticleLabel:             articleLabel,
				ArticleIntro:             articleIntro,
				MajorSubdivisionLabel:    derefOr(msLabel, ""),
				MajorSubdivisionIntro:    derefOr(msIntro, ""),
				NumberedPointLabel:       label,
				NumberedPointIntro:       intro,
				LetteredSubdivisionLabel: subLabel,
				HierarchyPath:            subHierarchy,
				ChunkID:                  strings.Join(subHierarchy, "::"),
				StartPos:                 baseOffset + m[0] + lm[0],
				EndPos:                   baseOffset + m[0] + subEnd,
				InheritedTargetArticle:   inherited,
			})
		}
	}
	return out
}

func consolidateHyphenated(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := hyphenatedOperationRE.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		} else if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, " ")
}

func inheritanceHint(text, code string) *model.TargetArticle {
	if text == "" {
		return nil
	}
	for _, p := range inheritancePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			article := whitespaceRunRE.ReplaceAllString(strings.TrimSpace(m[1]), " ")
			return &model.TargetArticle{OperationType: p.op, Code: code, Article: article}
		}
	}
	return nil
}

func extractCode(intro string) string {
	if intro == "" {
		return ""
	}
	for _, re := range codePatterns {
		if m := re.FindStringSubmatch(intro); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = nouveauSuffixRE.ReplaceAllString(label, "")
	label = trailingLRE.ReplaceAllString(label, "")
	return strings.TrimSpace(label)
}

type span struct {
	start, end int
	label      string
}

func findSpans(re *regexp.Regexp, text string) []span {
	ms := re.FindAllStringSubmatchIndex(text, -1)
	out := make([]span, 0, len(ms))
	for _, m := range ms {
		label := ""
		if len(m) >= 4 && m[2] >= 0 {
			label = text[m[2]:m[3]]
		}
		out = append(out, span{start: m[0], end: m[1], label: label})
	}
	return out
}

func findCapturedSpans(re *regexp.Regexp, text string) []span {
	return findSpans(re, text)
}

func firstOf(text string, res ...*regexp.Regexp) int {
	best := len(text)
	for _, re := range res {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < best {
			best = loc[0]
		}
	}
	return best
}

func splitFiltered(re *regexp.Regexp, s string) []string {
	parts := re.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func filterEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
