// Package identify implements TargetArticleIdentifier: for each bill
// chunk, determine the code/article it targets and the operation type
// (INSERT, MODIFY, ABROGATE, RENUMBER, OTHER), via an LLM JSON-mode call,
// cached by chunk content (spec.md §3.2).
package identify

import (
	"context"
	"fmt"
	"strings"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
)

const systemPrompt = `You identify the target legal article, code, and operation type of a French legislative amendment chunk. Respond in JSON with keys: operation_type (one of INSERT, MODIFY, ABROGATE, RENUMBER, OTHER), code, article, confidence (0 to 1).`

const component = "target_identifier"

// Identifier identifies the target article for a chunk.
type Identifier struct {
	client *llm.Client
	cache  *cache.Cache
}

// New creates an Identifier. cache may be nil to disable caching.
func New(client *llm.Client, c *cache.Cache) *Identifier {
	return &Identifier{client: client, cache: c}
}

type cacheKey struct {
	Text          string   `json:"text"`
	ArticleIntro  string   `json:"article_introductory_phrase"`
	SubdivIntro   string   `json:"major_subdivision_introductory_phrase"`
	HierarchyPath []string `json:"hierarchy_path"`
}

type rawResponse struct {
	OperationType string  `json:"operation_type"`
	Code          string  `json:"code"`
	Article       string  `json:"article"`
	Confidence    float64 `json:"confidence"`
}

// Identify determines the target article of chunk, preferring an
// inheritance hint from the splitter only as a fallback when the LLM
// response is unusable — the LLM call is otherwise authoritative,
// matching the original's "no silent failures" policy.
func (id *Identifier) Identify(ctx context.Context, chunk model.BillChunk) (*model.TargetArticle, error) {
	key := cacheKey{
		Text:          chunk.Text,
		ArticleIntro:  chunk.ArticleIntro,
		SubdivIntro:   chunk.MajorSubdivisionIntro,
		HierarchyPath: chunk.HierarchyPath,
	}

	if id.cache != nil {
		var cached model.TargetArticle
		if hit, err := id.cache.Get(component, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var resp rawResponse
	ok, err := id.client.CallJSON(ctx, component, systemPrompt, userPrompt(chunk), &resp)
	if err != nil {
		if chunk.InheritedTargetArticle != nil {
			return chunk.InheritedTargetArticle, nil
		}
		return nil, fmt.Errorf("identify: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("identify: empty response for chunk %q", chunk.ChunkID)
	}

	target := toTargetArticle(resp)

	if id.cache != nil {
		_ = id.cache.Set(component, key, target)
	}
	return target, nil
}

func userPrompt(chunk model.BillChunk) string {
	var ctxParts []string
	if chunk.ArticleIntro != "" {
		ctxParts = append(ctxParts, "Article Context: "+chunk.ArticleIntro)
	}
	if chunk.MajorSubdivisionIntro != "" {
		ctxParts = append(ctxParts, "Subdivision Context: "+chunk.MajorSubdivisionIntro)
	}
	contextText := "None"
	if len(ctxParts) > 0 {
		contextText = strings.Join(ctxParts, " | ")
	}
	return fmt.Sprintf("Chunk: %s\nContext: %s\nHierarchy: %s\n", chunk.Text, contextText, strings.Join(chunk.HierarchyPath, " > "))
}

func toTargetArticle(r rawResponse) *model.TargetArticle {
	op := model.OpOther
	switch strings.ToUpper(r.OperationType) {
	case string(model.OpInsert):
		op = model.OpInsert
	case string(model.OpModify):
		op = model.OpModify
	case string(model.OpAbrogate):
		op = model.OpAbrogate
	case string(model.OpRenumber):
		op = model.OpRenumber
	}
	confidence := r.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	return &model.TargetArticle{
		OperationType: op,
		Code:          r.Code,
		Article:       r.Article,
		Confidence:    confidence,
	}
}

// FullCitation builds the "article X du code Y" form used in reports and
// audit logs when both code and article are known.
func FullCitation(t *model.TargetArticle) string {
	if t == nil || t.Code == "" || t.Article == "" {
		return ""
	}
	return fmt.Sprintf("article %s du %s", t.Article, t.Code)
}
