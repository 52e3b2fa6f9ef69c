// Package registry implements NewArticleRegistry: a process-local,
// append-only map from (normalized code, normalized article) to text,
// populated whenever an INSERT chunk succeeds and queried by
// pkg/corpus when an article isn't yet present in the local corpus
// (spec.md §3, §4.3). Normalization mirrors the original reference
// implementation exactly so that later chunks in the same bill can find
// articles inserted earlier, regardless of minor formatting drift.
package registry

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type key struct {
	code    string
	article string
}

// Registry is a mutex-guarded, append-only map of inserted articles.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]string
}

// New creates an empty registry, intended to be constructed once per
// pipeline run.
func New() *Registry {
	return &Registry{entries: make(map[key]string)}
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	leadingCodeRE  = regexp.MustCompile(`^code\s+`)
	dotSpacingRE   = regexp.MustCompile(`\s*\.\s*`)
	hyphenSpacingRE = regexp.MustCompile(`\s*-\s*`)
	digitLetterRE  = regexp.MustCompile(`([0-9])\s+([A-Z])$`)
)

// normalize applies NFKD decomposition, strips combining marks,
// lowercases, and collapses whitespace — the same normalization the
// original's NewArticleRegistry._norm performs.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	lowered := strings.ToLower(b.String())
	return whitespaceRun.ReplaceAllString(lowered, " ")
}

func normalizeCode(code string) string {
	normalized := normalize(code)
	return leadingCodeRE.ReplaceAllString(normalized, "")
}

func normalizeArticle(article string) string {
	raw := strings.TrimSpace(article)
	v := dotSpacingRE.ReplaceAllString(raw, ".")
	v = hyphenSpacingRE.ReplaceAllString(v, "-")
	v = digitLetterRE.ReplaceAllString(v, "$1$2")
	return normalize(v)
}

func keyFor(code, article string) key {
	return key{code: normalizeCode(code), article: normalizeArticle(article)}
}

// SetText records the after-state text for a newly inserted article.
// Subsequent calls for the same (code, article) overwrite the prior
// value; the registry has no eviction, but last-writer-wins within a
// run is acceptable since a code/article pair is only inserted once in
// a well-formed bill.
func (r *Registry) SetText(code, article, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[keyFor(code, article)] = text
}

// GetText looks up a previously inserted article's text. The bool
// return distinguishes "not found" from an article whose text happens
// to be the empty string.
func (r *Registry) GetText(code, article string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.entries[keyFor(code, article)]
	return text, ok
}

// Len returns the number of distinct articles recorded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
