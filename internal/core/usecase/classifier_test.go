package usecase

import (
	"testing"

	"github.com/asafonov/docqa/internal/core/domain"
)

func TestClassifyQueryTypes(t *testing.T) {
	classifier := NewClassifier()

	cases := []struct {
		query string
		want  domain.QueryType
	}{
		{"What is the capital of France?", domain.QueryFactual},
		{"Who wrote the onboarding guide?", domain.QueryFactual},
		{"Summarize the document", domain.QuerySummarization},
		{"Give me an overview of the architecture", domain.QuerySummarization},
		{"Why does the scheduler starve low-priority jobs?", domain.QueryExplanatory},
		{"How does token refresh work?", domain.QueryExplanatory},
		{"Compare the 2024 and 2025 budgets", domain.QueryComparative},
		{"postgres vs mysql replication", domain.QueryComparative},
		{`Find the exact phrase "retention policy"`, domain.QuerySpecific},
		{"tell me something interesting", domain.QueryGeneral},
	}

	for _, tc := range cases {
		got := classifier.Classify(tc.query, nil)
		if got.Type != tc.want {
			t.Fatalf("Classify(%q) type = %s, want %s", tc.query, got.Type, tc.want)
		}
	}
}

func TestClassifyEmptyQueryIsGeneral(t *testing.T) {
	classifier := NewClassifier()

	for _, query := range []string{"", "   ", "\t\n"} {
		got := classifier.Classify(query, nil)
		if got.Type != domain.QueryGeneral {
			t.Fatalf("Classify(%q) type = %s, want %s", query, got.Type, domain.QueryGeneral)
		}
		if got.DocumentRef != nil {
			t.Fatalf("Classify(%q) detected a document reference in an empty query", query)
		}
	}
}

func TestAdaptiveThresholdTable(t *testing.T) {
	cases := []struct {
		queryType domain.QueryType
		want      float64
	}{
		{domain.QueryFactual, 0.50},
		{domain.QueryExplanatory, 0.40},
		{domain.QuerySummarization, 0.35},
		{domain.QuerySpecific, 0.55},
		{domain.QueryGeneral, 0.45},
		{domain.QueryComparative, 0.45},
	}
	for _, tc := range cases {
		if got := AdaptiveThreshold(tc.queryType, false); got != tc.want {
			t.Fatalf("AdaptiveThreshold(%s, false) = %v, want %v", tc.queryType, got, tc.want)
		}
		if got := AdaptiveThreshold(tc.queryType, true); got != 0.30 {
			t.Fatalf("AdaptiveThreshold(%s, true) = %v, want 0.30", tc.queryType, got)
		}
	}
}

func TestRetrievalConfigForAppliesDocRefOverride(t *testing.T) {
	cls := domain.QueryClassification{
		Type:        domain.QuerySpecific,
		DocumentRef: &domain.DocumentRef{ID: "doc-1", Name: "handbook.pdf"},
	}
	cfg := RetrievalConfigFor(cls)
	if cfg.TopK != 4 {
		t.Fatalf("TopK = %d, want 4", cfg.TopK)
	}
	if cfg.Threshold != 0.30 {
		t.Fatalf("Threshold = %v, want 0.30", cfg.Threshold)
	}
}

func TestClassifyDetectsDocumentReference(t *testing.T) {
	classifier := NewClassifier()
	docs := []domain.DocumentRef{
		{ID: "doc-1", Name: "employee handbook.pdf"},
		{ID: "doc-2", Name: "quarterly report 2025.pdf"},
	}

	got := classifier.Classify("tell me about the employee handbook", docs)
	if got.DocumentRef == nil {
		t.Fatalf("expected a document reference, got none")
	}
	if got.DocumentRef.ID != "doc-1" {
		t.Fatalf("DocumentRef.ID = %s, want doc-1", got.DocumentRef.ID)
	}

	got = classifier.Classify("how do I configure the mail server", docs)
	if got.DocumentRef != nil {
		t.Fatalf("unexpected document reference %+v for an unrelated query", got.DocumentRef)
	}
}

func TestExtractKeyTermsFiltersStopwordsAndShortWords(t *testing.T) {
	classifier := NewClassifier()

	got := classifier.Classify("Explain the replication topology between datacenter regions", nil)
	if len(got.KeyTerms) == 0 {
		t.Fatalf("expected key terms, got none")
	}
	if len(got.KeyTerms) > 5 {
		t.Fatalf("expected at most 5 key terms, got %d", len(got.KeyTerms))
	}
	for _, term := range got.KeyTerms {
		if len([]rune(term)) < 4 {
			t.Fatalf("key term %q is shorter than 4 runes", term)
		}
		if _, stop := stopwords[term]; stop {
			t.Fatalf("key term %q is a stopword", term)
		}
	}
}
