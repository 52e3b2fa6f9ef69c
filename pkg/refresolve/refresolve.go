// Package refresolve implements ReferenceResolver: fetching the text a
// linked reference actually points to, carving down to the referenced
// subsection where the reference is specific enough, and extracting a
// precise answer to the reference's resolution question (spec.md §4.10).
//
// DELETIONAL references resolve against the chunk's own original article
// text. DEFINITIONAL references require classifying the reference into a
// (code, article) pair first, then fetching it — from a local EU
// regulation file tree when the code names a known EU regulation, falling
// back to pkg/corpus.Retriever for French code articles (including ones
// inserted earlier in the same run, via the shared NewArticleRegistry).
package refresolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/coolbeans/regula/pkg/apply"
	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/corpus"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const component = "reference_resolver"

const referenceParserSystemPrompt = `Vous êtes un analyste de références juridiques françaises. Étant donné le texte d'une référence normative et son contexte (code et article dans lesquels elle apparaît), déterminez le code et l'article précis auxquels elle renvoie.

Si la référence cite explicitement un code (ex. "du code de l'environnement"), utilisez ce code. Sinon, si la référence est implicite ("du même article", "dudit règlement"), déduisez le code et l'article à partir du contexte fourni.

Répondez en JSON avec "code" (le nom du code ou du règlement, chaîne vide si indéterminable) et "article" (la référence d'article exacte, chaîne vide si indéterminable).`

const questionGuidedExtractionSystemPrompt = `Vous êtes un extracteur de réponses juridiques. Étant donné un texte source et une question précise sur ce texte, extrayez la réponse exacte telle qu'elle apparaît dans le texte source, sans paraphraser.

Répondez en JSON avec "extracted_answer" (la réponse extraite, ou chaîne vide si le texte source ne répond pas à la question).`

const subsectionParserSystemPrompt = `Vous êtes un analyste de structure de textes juridiques français. Étant donné le texte d'une référence normative, identifiez la sous-section qu'elle désigne (chiffre romain de section, et le cas échéant un point numéroté ou une lettre de sous-point).

Répondez en JSON avec "section" (le chiffre romain, chaîne vide si aucune section n'est désignée), "point" (le numéro de point, chaîne vide sinon), et "type" (une des valeurs "point", "section_only", "subpoint", ou "unknown").`

const subsectionExtractionSystemPrompt = `Vous êtes un extracteur de sous-sections de textes juridiques français. Étant donné le texte complet d'un article et la sous-section recherchée (décrite en JSON), extrayez uniquement le contenu de cette sous-section.

Répondez en JSON avec "extracted_subsection" (le contenu extrait, chaîne vide si introuvable).`

// Resolver fetches and carves the content a linked reference points to.
type Resolver struct {
	client    *llm.Client
	cache     *cache.Cache
	retriever *corpus.Retriever
	euRoot    string // root directory of the local EU regulation text tree
}

// New creates a Resolver. cache may be nil to disable caching. euRoot may
// be empty to disable the direct EU regulation file path, falling back
// to retriever for every definitional reference.
func New(client *llm.Client, c *cache.Cache, retriever *corpus.Retriever, euRoot string) *Resolver {
	return &Resolver{client: client, cache: c, retriever: retriever, euRoot: euRoot}
}

// ResolveReferences resolves every linked reference against
// originalArticleText (for DELETIONAL references) or a classified,
// fetched document (for DEFINITIONAL references), isolating per-reference
// failures into the Unresolved bucket rather than aborting the batch.
func (r *Resolver) ResolveReferences(ctx context.Context, linkedReferences []model.LinkedReference, originalArticleText string, target *model.TargetArticle) model.ResolutionResult {
	result := model.ResolutionResult{
		ResolvedDeletional:   []model.ResolvedReference{},
		ResolvedDefinitional: []model.ResolvedReference{},
		Unresolved:           []model.UnresolvedReference{},
		ResolutionTree:       map[string]interface{}{},
	}

	for _, ref := range linkedReferences {
		resolved, err := r.resolveSingleReference(ctx, ref, originalArticleText, target)
		if err != nil {
			result.Unresolved = append(result.Unresolved, model.UnresolvedReference{LinkedReference: ref, Error: err.Error()})
			continue
		}
		if ref.Source == model.SourceDefinitional {
			result.ResolvedDefinitional = append(result.ResolvedDefinitional, *resolved)
		} else {
			result.ResolvedDeletional = append(result.ResolvedDeletional, *resolved)
		}
	}

	return result
}

func (r *Resolver) resolveSingleReference(ctx context.Context, ref model.LinkedReference, originalArticleText string, target *model.TargetArticle) (*model.ResolvedReference, error) {
	var sourceContent string
	var meta model.RetrievalMetadata

	if ref.Source == model.SourceDeletional {
		sourceContent = originalArticleText
		meta = model.RetrievalMetadata{Source: "original_article_text"}
	} else {
		content, retrievalMeta, err := r.getContentForDefinitionalRef(ctx, ref, target)
		if err != nil {
			return nil, err
		}
		sourceContent, meta = content, retrievalMeta
	}

	if strings.TrimSpace(sourceContent) == "" {
		return nil, fmt.Errorf("refresolve: no source content for reference %q", ref.ReferenceText)
	}

	extractedContent := r.extractSubsectionIfApplicable(ctx, sourceContent, ref.ReferenceText, &meta)

	resolvedContent, err := r.extractAnswerFromContent(ctx, extractedContent, ref)
	if err != nil {
		return nil, err
	}

	return &model.ResolvedReference{
		LinkedReference:   ref,
		ResolvedContent:   resolvedContent,
		RetrievalMetadata: meta,
	}, nil
}

func (r *Resolver) getContentForDefinitionalRef(ctx context.Context, ref model.LinkedReference, target *model.TargetArticle) (string, model.RetrievalMetadata, error) {
	contextualCode, parentArticle := "", ""
	if target != nil {
		contextualCode, parentArticle = target.Code, target.Article
	}

	code, article, ok := r.classifyAndParseDefinitionalRef(ctx, ref.ReferenceText, contextualCode, parentArticle)
	if !ok {
		return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("refresolve: could not classify reference %q", ref.ReferenceText)
	}

	if content, ok := r.tryEUFileAccess(ref.ReferenceText, code, article); ok {
		return content, model.RetrievalMetadata{Source: "eu_file", Method: "direct_file_access"}, nil
	}

	if r.retriever == nil {
		return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("refresolve: no retriever configured for %s %s", code, article)
	}

	text, meta, err := r.retriever.FetchArticleText(ctx, code, article)
	if err != nil {
		return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("refresolve: fetching %s %s: %w", code, article, err)
	}
	return text, meta, nil
}

type classifyCacheKey struct {
	ReferenceText  string `json:"reference_text"`
	ContextualCode string `json:"contextual_code"`
	ParentArticle  string `json:"parent_article"`
}

type classifyResponse struct {
	Code    string `json:"code"`
	Article string `json:"article"`
}

// classifyAndParseDefinitionalRef turns a reference's free text into a
// (code, article) pair, resolving implicit references ("du même article")
// against the chunk's own target article for context.
func (r *Resolver) classifyAndParseDefinitionalRef(ctx context.Context, referenceText, contextualCode, parentArticle string) (string, string, bool) {
	key := classifyCacheKey{ReferenceText: referenceText, ContextualCode: contextualCode, ParentArticle: parentArticle}
	if r.cache != nil {
		var cached classifyResponse
		if hit, err := r.cache.Get(component+".parser", key, &cached); err == nil && hit {
			if cached.Code == "" || cached.Article == "" {
				return "", "", false
			}
			return cached.Code, cached.Article, true
		}
	}

	if r.client == nil {
		return "", "", false
	}

	userPayload := map[string]string{
		"reference_text":         referenceText,
		"contextual_code":        contextualCode,
		"parent_article_context": parentArticle,
	}

	var resp classifyResponse
	ok, err := r.client.CallJSON(ctx, component+".parser", referenceParserSystemPrompt, userPayload, &resp)
	if err != nil || !ok {
		return "", "", false
	}

	if resp.Code == "" || resp.Article == "" {
		return "", "", false
	}

	if r.cache != nil {
		_ = r.cache.Set(component+".parser", key, resp)
	}
	return resp.Code, resp.Article, true
}

var euPointRE = regexp.MustCompile(`(\d+)(?:°|\)|\.)`)

const eu1107RegulationDir = "Règlement CE No 1107_2009"

// tryEUFileAccess serves EU regulation text directly from a local file
// tree rather than through pkg/corpus, mirroring the original's direct
// filesystem shortcut for the one EU regulation (1107/2009, plant
// protection products) its corpus ships pre-split by article and point.
func (r *Resolver) tryEUFileAccess(referenceText, code, article string) (string, bool) {
	if r.euRoot == "" {
		return "", false
	}
	if !strings.Contains(strings.ToLower(code), "règlement") || !strings.Contains(code, "1107/2009") {
		return "", false
	}

	if m := euPointRE.FindStringSubmatch(referenceText); m != nil {
		if content, ok := r.getEUContentDirect(eu1107RegulationDir, article, m[1]); ok {
			return content, true
		}
	}

	return r.getEUOverview(eu1107RegulationDir, article)
}

func (r *Resolver) getEUContentDirect(regulation, article, point string) (string, bool) {
	path := filepath.Join(r.euRoot, regulation, "Article_"+article, "Point_"+point+".md")
	return r.readEUFile(path)
}

func (r *Resolver) getEUOverview(regulation, article string) (string, bool) {
	path := filepath.Join(r.euRoot, regulation, "Article_"+article, "overview.md")
	return r.readEUFile(path)
}

func (r *Resolver) readEUFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return stripMarkdownHeader(string(data)), true
}

// stripMarkdownHeader drops a leading "# ..." title line and any
// "---" front-matter delimiter lines, returning the remaining body.
func stripMarkdownHeader(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || trimmed == "---" {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// subsectionInfo is the outcome of parsing a reference's subsection
// pattern: which major subdivision (Roman numeral) and, where the
// reference is that specific, which numbered point or lettered subpoint.
type subsectionInfo struct {
	Section  string
	Point    string
	Points   []string
	Subpoint string
	Kind     string // "point", "multiple_points", "subpoint", "section_only", "unknown"
}

var (
	subsectionPointRE    = regexp.MustCompile(`au (\d+)° du ([IVXLCDM]+)`)
	subsectionMultiOuRE  = regexp.MustCompile(`aux (\d+)° ou (\d+)° du ([IVXLCDM]+)`)
	subsectionMultiEtRE  = regexp.MustCompile(`aux (\d+)° et (\d+)° du ([IVXLCDM]+)`)
	subsectionSubpointRE = regexp.MustCompile(`([a-z])\) du (\d+)° du ([IVXLCDM]+)`)
	subsectionOnlyRE     = regexp.MustCompile(`du ([IVXLCDM]+)`)
)

// extractSubsectionIfApplicable carves source down to the subsection the
// reference names, when the reference is specific enough to name one.
// meta is annotated in place with extraction provenance, matching the
// original's retrieval_metadata["subsection_extraction"] enrichment.
func (r *Resolver) extractSubsectionIfApplicable(ctx context.Context, sourceContent, referenceText string, meta *model.RetrievalMetadata) string {
	info, ok := r.parseSubsectionPattern(ctx, referenceText)
	if !ok {
		return sourceContent
	}

	extracted, ok := r.extractSubsectionFromContent(ctx, sourceContent, info)
	if !ok {
		return sourceContent
	}

	meta.Subsection = info.Section
	if info.Point != "" {
		meta.Subsection = info.Section + "." + info.Point
	}
	meta.Method = "subsection_extraction"
	return extracted
}

// parseSubsectionPattern tries five ordered deterministic patterns before
// falling back to an LLM call for wording the patterns don't cover.
func (r *Resolver) parseSubsectionPattern(ctx context.Context, referenceText string) (*subsectionInfo, bool) {
	if m := subsectionSubpointRE.FindStringSubmatch(referenceText); m != nil {
		return &subsectionInfo{Subpoint: m[1], Point: m[2], Section: m[3], Kind: "subpoint"}, true
	}
	if m := subsectionMultiOuRE.FindStringSubmatch(referenceText); m != nil {
		return &subsectionInfo{Points: []string{m[1], m[2]}, Section: m[3], Kind: "multiple_points"}, true
	}
	if m := subsectionMultiEtRE.FindStringSubmatch(referenceText); m != nil {
		return &subsectionInfo{Points: []string{m[1], m[2]}, Section: m[3], Kind: "multiple_points"}, true
	}
	if m := subsectionPointRE.FindStringSubmatch(referenceText); m != nil {
		return &subsectionInfo{Point: m[1], Section: m[2], Kind: "point"}, true
	}
	if m := subsectionOnlyRE.FindStringSubmatch(referenceText); m != nil {
		return &subsectionInfo{Section: m[1], Kind: "section_only"}, true
	}

	return r.parseSubsectionPatternLLM(ctx, referenceText)
}

type subsectionParseResponse struct {
	Section string `json:"section"`
	Point   string `json:"point"`
	Kind    string `json:"type"`
}

func (r *Resolver) parseSubsectionPatternLLM(ctx context.Context, referenceText string) (*subsectionInfo, bool) {
	if r.client == nil {
		return nil, false
	}

	var resp subsectionParseResponse
	ok, err := r.client.CallJSON(ctx, component+".subsection_parser", subsectionParserSystemPrompt,
		map[string]string{"reference_text": referenceText}, &resp)
	if err != nil || !ok || resp.Section == "" {
		return nil, false
	}
	kind := resp.Kind
	if kind == "" {
		kind = "unknown"
	}
	return &subsectionInfo{Section: resp.Section, Point: resp.Point, Kind: kind}, true
}

// extractSubsectionFromContent carves the section (and, where named, the
// point within it) out of content, reusing pkg/apply's section/point
// boundary finder so the carved text's offsets map back onto the same
// conventions the operation applier already relies on.
func (r *Resolver) extractSubsectionFromContent(ctx context.Context, content string, info *subsectionInfo) (string, bool) {
	if info.Section == "" {
		return "", false
	}

	// SectionBounds falls back to the whole text when the section header
	// is absent, so the header is checked here first.
	headerRE := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(info.Section) + `\s*[.\-–—)]`)
	if !headerRE.MatchString(content) {
		return r.extractSubsectionLLM(ctx, content, info)
	}
	_, _, sectionText, ok := apply.SectionBounds(content, info.Section)
	if !ok {
		return r.extractSubsectionLLM(ctx, content, info)
	}

	if info.Point != "" {
		pStart, pEnd, ok := apply.PointBounds(sectionText, info.Point)
		if ok {
			return sectionText[pStart:pEnd], true
		}
	}

	return sectionText, true
}

type subsectionExtractResponse struct {
	ExtractedSubsection string `json:"extracted_subsection"`
}

func (r *Resolver) extractSubsectionLLM(ctx context.Context, content string, info *subsectionInfo) (string, bool) {
	if r.client == nil {
		return "", false
	}

	userPayload := map[string]string{
		"article_text":       content,
		"subsection_pattern": fmt.Sprintf("%+v", info),
	}

	var resp subsectionExtractResponse
	ok, err := r.client.CallJSON(ctx, component+".subsection_extractor", subsectionExtractionSystemPrompt, userPayload, &resp)
	if err != nil || !ok {
		return "", false
	}
	extracted := strings.TrimSpace(resp.ExtractedSubsection)
	if extracted == "" {
		return "", false
	}
	return extracted, true
}

type extractAnswerResponse struct {
	ExtractedAnswer string `json:"extracted_answer"`
}

// extractAnswerFromContent asks a final question-guided extraction over
// the (possibly carved) source content, returning the literal answer the
// source text gives to the reference's resolution question.
func (r *Resolver) extractAnswerFromContent(ctx context.Context, sourceContent string, ref model.LinkedReference) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("refresolve: no LLM client configured")
	}

	userPayload := map[string]string{
		"source_text":      sourceContent,
		"question":         ref.ResolutionQuestion,
		"reference_text":   ref.ReferenceText,
		"referenced_object": ref.Object,
	}

	var resp extractAnswerResponse
	ok, err := r.client.CallJSON(ctx, component+".extractor", questionGuidedExtractionSystemPrompt, userPayload, &resp)
	if err != nil {
		return "", fmt.Errorf("refresolve: extracting answer for %q: %w", ref.ReferenceText, err)
	}
	if !ok || strings.TrimSpace(resp.ExtractedAnswer) == "" {
		return "", fmt.Errorf("refresolve: no answer extracted for %q", ref.ReferenceText)
	}
	return resp.ExtractedAnswer, nil
}
