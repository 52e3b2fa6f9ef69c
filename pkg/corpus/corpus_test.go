package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/registry"
)

func writeArticle(t *testing.T, root, codeSlug, articleSlug, text string) {
	t.Helper()
	dir := filepath.Join(root, codeSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, articleSlug+".txt"), []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFetchArticleTextFromCorpus(t *testing.T) {
	root := t.TempDir()
	writeArticle(t, root, "code_civil", "L254-1", "texte de l'article")

	r := New(root, nil, nil, nil)
	text, meta, err := r.FetchArticleText(context.Background(), "code civil", "L. 254-1")
	if err != nil {
		t.Fatalf("FetchArticleText: %v", err)
	}
	if text != "texte de l'article" {
		t.Fatalf("unexpected text: %q", text)
	}
	if meta.Source != "corpus" {
		t.Fatalf("expected source 'corpus', got %q", meta.Source)
	}
}

func TestFetchForTargetInsertReturnsEmpty(t *testing.T) {
	r := New(t.TempDir(), nil, nil, nil)
	text, meta, err := r.FetchForTarget(context.Background(), &model.TargetArticle{OperationType: model.OpInsert, Article: "L. 1-1"})
	if err != nil {
		t.Fatalf("FetchForTarget: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text for INSERT, got %q", text)
	}
	if meta.Source != "insert_operation" {
		t.Fatalf("unexpected source %q", meta.Source)
	}
}

func TestFetchArticleTextFallsBackToRegistry(t *testing.T) {
	reg := registry.New()
	reg.SetText("code civil", "L. 1-1", "texte inséré plus tôt")

	r := New(t.TempDir(), nil, reg, nil)
	text, meta, err := r.FetchArticleText(context.Background(), "code civil", "L. 1-1")
	if err != nil {
		t.Fatalf("FetchArticleText: %v", err)
	}
	if text != "texte inséré plus tôt" {
		t.Fatalf("unexpected text: %q", text)
	}
	if meta.Source != "new_article_registry" {
		t.Fatalf("unexpected source %q", meta.Source)
	}
}

func TestFetchArticleTextMissingReturnsError(t *testing.T) {
	r := New(t.TempDir(), nil, nil, nil)
	_, meta, err := r.FetchArticleText(context.Background(), "code civil", "L. 999-1")
	if err == nil {
		t.Fatalf("expected error for missing article")
	}
	if meta.Source != "none" {
		t.Fatalf("unexpected source %q", meta.Source)
	}
}

func TestShouldTryHierarchical(t *testing.T) {
	if !shouldTryHierarchical("L. 118-1-2") {
		t.Errorf("expected hierarchical fallback for L. 118-1-2")
	}
	if shouldTryHierarchical("L. 254-1") {
		t.Errorf("did not expect hierarchical fallback for a single-level article")
	}
}

func TestSplitHierarchical(t *testing.T) {
	parent, sub := splitHierarchical("L. 118-1-2")
	if parent != "L. 118-1" || sub != "2" {
		t.Fatalf("unexpected split: parent=%q sub=%q", parent, sub)
	}
}
