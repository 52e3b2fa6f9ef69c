package identify

import (
	"context"
	"testing"
	"time"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/ratelimit"
)

type fakeProvider struct {
	content string
	calls   int
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	return &llm.ChatResponse{Content: f.content}, nil
}

func newTestClient(content string) (*llm.Client, *fakeProvider) {
	fp := &fakeProvider{content: content}
	l := ratelimit.New(time.Millisecond, 10*time.Millisecond, 1)
	l.BackoffBase = time.Millisecond
	return llm.NewClient(fp, l, "test-model", 0.0), fp
}

func TestIdentifyParsesResponse(t *testing.T) {
	client, _ := newTestClient(`{"operation_type": "modify", "code": "code rural", "article": "L. 254-1", "confidence": 0.9}`)
	id := New(client, nil)

	target, err := id.Identify(context.Background(), model.BillChunk{Text: "chunk", ChunkID: "c1"})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if target.OperationType != model.OpModify {
		t.Errorf("expected MODIFY, got %s", target.OperationType)
	}
	if target.Code != "code rural" || target.Article != "L. 254-1" {
		t.Errorf("unexpected target %+v", target)
	}
}

func TestIdentifyUsesCache(t *testing.T) {
	client, fp := newTestClient(`{"operation_type": "insert", "confidence": 0.8}`)
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	id := New(client, c)

	chunk := model.BillChunk{Text: "chunk", ChunkID: "c1"}
	if _, err := id.Identify(context.Background(), chunk); err != nil {
		t.Fatalf("first Identify: %v", err)
	}
	if _, err := id.Identify(context.Background(), chunk); err != nil {
		t.Fatalf("second Identify: %v", err)
	}
	if fp.calls != 1 {
		t.Fatalf("expected 1 LLM call due to caching, got %d", fp.calls)
	}
}

func TestIdentifyFallsBackToInheritedHintOnFailure(t *testing.T) {
	client, _ := newTestClient("not json")
	id := New(client, nil)

	hint := &model.TargetArticle{OperationType: model.OpInsert, Code: "code civil", Article: "L. 1-1"}
	target, err := id.Identify(context.Background(), model.BillChunk{Text: "x", InheritedTargetArticle: hint})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if target != hint {
		t.Fatalf("expected fallback to inherited hint")
	}
}

func TestFullCitation(t *testing.T) {
	if got := FullCitation(&model.TargetArticle{Code: "code civil", Article: "L. 1-1"}); got != "article L. 1-1 du code civil" {
		t.Fatalf("unexpected citation: %q", got)
	}
	if got := FullCitation(nil); got != "" {
		t.Fatalf("expected empty citation for nil target, got %q", got)
	}
}
