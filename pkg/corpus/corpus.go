// Package corpus implements OriginalTextRetriever: fetching the current
// text of a target article from a local corpus snapshot, with
// hierarchical fallback (e.g. L. 118-1-2 -> parent L. 118-1 plus an LLM
// subsection extraction) and a NewArticleRegistry fallback for articles
// inserted earlier in the same run (spec.md §3.3).
//
// The original implementation called the Légifrance API directly via
// pylegifrance; this pipeline reads from a local, operator-maintained
// corpus directory instead (spec.md's Non-goals exclude live external API
// integration), watched for changes via fsnotify the way the teacher
// watches validation manifests.
package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/registry"
)

const component = "original_text_retriever"

// Retriever fetches article text for a TargetArticle.
type Retriever struct {
	root     string
	cache    *cache.Cache
	registry *registry.Registry
	llm      *llm.Client // optional, enables hierarchical fallback
}

// New creates a Retriever reading from root. cache and llmClient may be
// nil to disable caching and hierarchical fallback respectively; reg may
// be nil if no NewArticleRegistry is shared across the run.
func New(root string, c *cache.Cache, reg *registry.Registry, llmClient *llm.Client) *Retriever {
	return &Retriever{root: root, cache: c, registry: reg, llm: llmClient}
}

type cacheKey struct {
	Code    string `json:"code"`
	Article string `json:"article"`
}

type cachedText struct {
	Text string `json:"text"`
}

// FetchForTarget is the convenience entry point used by the pipeline:
// INSERT operations never have existing text, so they short-circuit to
// an empty result without touching the corpus or cache.
func (r *Retriever) FetchForTarget(ctx context.Context, target *model.TargetArticle) (string, model.RetrievalMetadata, error) {
	if target == nil {
		return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("corpus: nil target article")
	}
	if target.OperationType == model.OpInsert {
		return "", model.RetrievalMetadata{Source: "insert_operation"}, nil
	}
	if target.Code == "" || target.Article == "" {
		return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("corpus: missing code or article")
	}
	return r.FetchArticleText(ctx, target.Code, target.Article)
}

// FetchArticleText fetches the text of code/article, trying in order:
// cache, the local corpus snapshot, hierarchical fallback (parent article
// plus LLM subsection extraction), then the run's NewArticleRegistry for
// articles inserted earlier in the same bill.
func (r *Retriever) FetchArticleText(ctx context.Context, code, article string) (string, model.RetrievalMetadata, error) {
	key := cacheKey{Code: code, Article: article}

	if r.cache != nil {
		var cached cachedText
		if hit, err := r.cache.Get(component, key, &cached); err == nil && hit {
			return cached.Text, model.RetrievalMetadata{Source: "cache", CacheHit: true}, nil
		}
	}

	if text, ok := r.readFromCorpus(code, article); ok {
		r.store(key, text)
		return text, model.RetrievalMetadata{Source: "corpus"}, nil
	}

	if shouldTryHierarchical(article) && r.llm != nil {
		parent, subsection := splitHierarchical(article)
		if parentText, ok := r.readFromCorpus(code, parent); ok {
			content, err := r.extractSubsection(ctx, parentText, subsection, article)
			if err == nil && content != "" {
				r.store(key, content)
				return content, model.RetrievalMetadata{
					Source:        "hierarchical_fallback",
					ParentArticle: parent,
					Subsection:    subsection,
					Method:        "llm_extraction",
				}, nil
			}
		}
	}

	if r.registry != nil {
		if text, ok := r.registry.GetText(code, article); ok {
			return text, model.RetrievalMetadata{Source: "new_article_registry"}, nil
		}
	}

	return "", model.RetrievalMetadata{Source: "none"}, fmt.Errorf("corpus: could not retrieve %s %s", code, article)
}

func (r *Retriever) store(key cacheKey, text string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Set(component, key, cachedText{Text: text})
}

func (r *Retriever) readFromCorpus(code, article string) (string, bool) {
	slug := slugForCode(code)
	if slug == "" {
		return "", false
	}
	path := filepath.Join(r.root, slug, slugForArticle(article)+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false
	}
	return text, true
}

// shouldTryHierarchical mirrors _should_try_hierarchical_fallback: only
// articles with at least two hyphens (e.g. L. 118-1-2) have a deeper
// parent to fall back to.
func shouldTryHierarchical(article string) bool {
	return strings.HasPrefix(article, "L. ") && strings.Count(article, "-") >= 2
}

// splitHierarchical mirrors _parse_hierarchical_article: "L. 118-1-2"
// becomes parent "L. 118-1" and subsection "2".
func splitHierarchical(article string) (parent, subsection string) {
	parts := strings.Split(article, "-")
	if len(parts) < 3 {
		return article, ""
	}
	return strings.Join(parts[:len(parts)-1], "-"), parts[len(parts)-1]
}

const subsectionSystemPromptTemplate = `Vous êtes un spécialiste de l'extraction de textes juridiques. Étant donné un texte d'article juridique français et un identifiant de sous-section, extrayez le contenu spécifique de la sous-section %q. Retournez un objet JSON avec "found" (booléen), "content" (chaîne), et "explanation" (chaîne).`

type subsectionResponse struct {
	Found       bool   `json:"found"`
	Content     string `json:"content"`
	Explanation string `json:"explanation"`
}

func (r *Retriever) extractSubsection(ctx context.Context, parentText, subsection, originalArticle string) (string, error) {
	systemPrompt := fmt.Sprintf(subsectionSystemPromptTemplate, subsection)
	userPayload := map[string]string{
		"original_article": originalArticle,
		"subsection":       subsection,
		"parent_text":      parentText,
	}

	var resp subsectionResponse
	ok, err := r.llm.CallJSON(ctx, component+"_subsection", systemPrompt, userPayload, &resp)
	if err != nil {
		return "", err
	}
	if !ok || !resp.Found || resp.Content == "" {
		return "", fmt.Errorf("corpus: subsection %s not found in parent article", subsection)
	}
	return resp.Content, nil
}
