package cache

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleInput struct {
	Code    string `json:"code"`
	Article string `json:"article"`
}

type sampleResult struct {
	Text string `json:"text"`
}

func TestSetGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	input := sampleInput{Code: "code rural", Article: "L. 254-1"}
	want := sampleResult{Text: "texte de l'article"}

	if err := c.Set("retriever", input, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got sampleResult
	found, err := c.Get("retriever", input, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("expected cache hit")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var dest sampleResult
	found, err := c.Get("retriever", sampleInput{Code: "x"}, &dest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("expected cache miss")
	}
}

func TestKeyDeterministic(t *testing.T) {
	input := sampleInput{Code: "code rural", Article: "L. 254-1"}
	k1, err := Key("retriever", input)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key("retriever", input)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %s and %s", k1, k2)
	}
	if len(k1) != 16 {
		t.Fatalf("expected 16-hex key, got %q (%d chars)", k1, len(k1))
	}
}

func TestInvalidateByComponent(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Set("retriever", sampleInput{Code: "a"}, sampleResult{Text: "1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("applier", sampleInput{Code: "b"}, sampleResult{Text: "2"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	removed, err := c.Invalidate("retriever")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	var dest sampleResult
	found, _ := c.Get("retriever", sampleInput{Code: "a"}, &dest)
	if found {
		t.Fatalf("expected retriever entry gone")
	}
	found, _ = c.Get("applier", sampleInput{Code: "b"}, &dest)
	if !found {
		t.Fatalf("expected applier entry to survive")
	}
}

func TestSetWritesBinFile(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	input := sampleInput{Code: "a", Article: "b"}
	if err := c.Set("applier", input, sampleResult{Text: "x"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	key, _ := Key("applier", input)
	path := filepath.Join(dir, "applier_"+key+".bin")
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected cache file at %s: %v", path, statErr)
	}
}
