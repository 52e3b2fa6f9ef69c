package registry

import "testing"

func TestSetGetRoundTrip(t *testing.T) {
	r := New()
	r.SetText("code de l'environnement", "L. 411-2-2", "Texte de l'article inséré.")

	text, ok := r.GetText("code de l'environnement", "L. 411-2-2")
	if !ok {
		t.Fatalf("expected article to be found")
	}
	if text != "Texte de l'article inséré." {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestNormalizationCollidesOnCodePrefix(t *testing.T) {
	r := New()
	r.SetText("code rural et de la pêche maritime", "L. 254-1", "texte")

	// "code " prefix stripped, so the bare name should hit the same entry.
	text, ok := r.GetText("rural et de la pêche maritime", "L. 254-1")
	if !ok {
		t.Fatalf("expected normalized code without 'code ' prefix to collide")
	}
	if text != "texte" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestNormalizationCollidesOnArticleSpacing(t *testing.T) {
	r := New()
	r.SetText("code civil", "L.254-1", "texte")

	text, ok := r.GetText("code civil", "L. 254-1")
	if !ok {
		t.Fatalf("expected 'L.254-1' and 'L. 254-1' to normalize to the same key")
	}
	if text != "texte" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestGetTextMissReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.GetText("code civil", "L. 1-1")
	if ok {
		t.Fatalf("expected miss on empty registry")
	}
}

func TestLen(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry to have len 0")
	}
	r.SetText("code civil", "L. 1-1", "a")
	r.SetText("code civil", "L. 1-2", "b")
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}
}
