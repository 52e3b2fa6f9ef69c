package corpus

import (
	"regexp"
	"sort"
	"strings"

	"github.com/coolbeans/regula/pkg/model"
)

// ArticleRef is one (code, article) pair the corpus must already hold
// text for before a run can complete. Grounded on
// list_required_legifrance_articles.py's CodeArticle dataclass, whose
// regex-driven extraction over chunk sidecars this package replaces with
// a pass over already-identified TargetArticle results — the Go pipeline
// resolves code/article via TargetArticleIdentifier rather than scanning
// introductory-phrase text with regexes, so there is no separate
// extraction step to port, only the dedup/normalize/sort tail.
type ArticleRef struct {
	Code    string `json:"code"`
	Article string `json:"article"`
}

var articlePrefixRE = regexp.MustCompile(`^([LRD])\.\s*`)

// AsText renders "{Code} > Article {Article}", matching CodeArticle.as_text.
func (a ArticleRef) AsText() string {
	article := articlePrefixRE.ReplaceAllString(strings.TrimSpace(a.Article), "$1. ")
	return normalizeCodeName(a.Code) + " > Article " + article
}

var leadingCodeRE = regexp.MustCompile(`(?i)^code\b`)

// normalizeCodeName ensures a "Code " prefix and capitalizes the first
// letter that follows it, matching normalize_code_name.
func normalizeCodeName(raw string) string {
	s := strings.TrimSpace(raw)
	if !leadingCodeRE.MatchString(s) {
		s = "Code " + s
	}
	if strings.HasPrefix(strings.ToLower(s), "code ") {
		tail := strings.TrimSpace(s[5:])
		if tail != "" {
			s = "Code " + strings.ToUpper(tail[:1]) + tail[1:]
		}
	}
	return s
}

// RequiredArticles collects the distinct (code, article) pairs a dry-run
// split+identify pass will need from the corpus, so an operator can
// confirm coverage before spending LLM calls on the full pipeline.
// INSERT targets are excluded: they introduce new text rather than
// requiring existing corpus text (mirroring Retriever.FetchForTarget's
// own INSERT short-circuit). Targets missing a code or article, or below
// confidenceThreshold, are excluded as unreliable.
func RequiredArticles(targets []*model.TargetArticle, confidenceThreshold float64) []ArticleRef {
	seen := map[ArticleRef]bool{}
	var out []ArticleRef

	for _, t := range targets {
		if t == nil || t.OperationType == model.OpInsert {
			continue
		}
		if t.Code == "" || t.Article == "" {
			continue
		}
		if t.Confidence < confidenceThreshold {
			continue
		}
		ref := ArticleRef{Code: t.Code, Article: t.Article}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := strings.ToLower(normalizeCodeName(out[i].Code)), strings.ToLower(normalizeCodeName(out[j].Code))
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(out[i].Article) < strings.ToLower(out[j].Article)
	})
	return out
}
