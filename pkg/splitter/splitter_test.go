package splitter

import "testing"

const sampleBill = `# TITRE Iᴱᴿ

## Article 1

I. – Le code rural et de la pêche maritime est ainsi modifié :

1° L'article L. 254-1 est ainsi modifié :

a) Au premier alinéa, les mots : « anciens mots » sont remplacés par les mots : « nouveaux mots » ;

b) Il est ajouté un alinéa ainsi rédigé :

« Un nouvel alinéa. » ;

2° Après l'article L. 254-6, il est inséré un article L. 254-6-1 ainsi rédigé :

« Art. L. 254-6-1. – Texte du nouvel article. »

## Article 2

Le présent article ne comporte aucune subdivision.
`

func TestSplitProducesLetteredChunks(t *testing.T) {
	chunks := New().Split(sampleBill)
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}

	var foundA, foundB bool
	for _, c := range chunks {
		if c.LetteredSubdivisionLabel == "a)" {
			foundA = true
			if c.ArticleLabel != "Article 1" {
				t.Errorf("expected article label 'Article 1', got %q", c.ArticleLabel)
			}
			if c.MajorSubdivisionLabel != "I" {
				t.Errorf("expected major subdivision 'I', got %q", c.MajorSubdivisionLabel)
			}
		}
		if c.LetteredSubdivisionLabel == "b)" {
			foundB = true
		}
	}
	if !foundA || !foundB {
		t.Fatalf("expected lettered subdivisions a) and b), got chunks: %+v", chunks)
	}
}

func TestSplitCreatesInheritanceHintForInsert(t *testing.T) {
	chunks := New().Split(sampleBill)
	var found bool
	for _, c := range chunks {
		if c.InheritedTargetArticle != nil && c.InheritedTargetArticle.Article == "L. 254-6-1" {
			found = true
			if c.InheritedTargetArticle.OperationType != "INSERT" {
				t.Errorf("expected insert operation type, got %q", c.InheritedTargetArticle.OperationType)
			}
		}
	}
	if !found {
		t.Fatalf("expected an inheritance hint for the inserted article")
	}
}

func TestSplitFallsBackToWholeArticle(t *testing.T) {
	chunks := New().Split(sampleBill)
	var found bool
	for _, c := range chunks {
		if c.ArticleLabel == "Article 2" {
			found = true
			if c.Text == "" {
				t.Errorf("expected fallback chunk text to be non-empty")
			}
		}
	}
	if !found {
		t.Fatalf("expected a fallback chunk for Article 2")
	}
}

func TestSplitEmptyTextReturnsNoChunks(t *testing.T) {
	chunks := New().Split("")
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}
