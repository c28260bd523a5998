package rerank

import (
	"context"
	"testing"
)

func TestScoreFractionOfQueryTerms(t *testing.T) {
	scorer := NewLexicalScorer()

	cases := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"full overlap", "backup retention policy", "the retention policy for backup jobs", 1.0},
		{"half overlap", "backup retention", "backup schedule for servers", 0.5},
		{"no overlap", "vacation days", "network topology diagram", 0.0},
		{"case and punctuation ignored", "Backup, RETENTION!", "retention of backup data", 1.0},
		{"short words dropped", "is it on", "it is on", 0.0},
		{"empty query", "", "anything", 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scorer.Score(context.Background(), tc.query, tc.text)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Score(%q, %q) = %v, want %v", tc.query, tc.text, got, tc.want)
			}
		})
	}
}

func TestScoreRepeatedTermsCountOnce(t *testing.T) {
	scorer := NewLexicalScorer()
	got, err := scorer.Score(context.Background(), "backup backup backup", "one backup mention")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got != 1.0 {
		t.Fatalf("Score = %v, want 1.0 for the single distinct term", got)
	}
}
