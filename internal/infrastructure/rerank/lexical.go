// Package rerank provides the default cross-encoder stand-in: a lexical
// overlap scorer. Deployments with a real rerank model swap it behind the
// same port.
package rerank

import (
	"context"
	"strings"
	"unicode"
)

type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns the fraction of distinct query terms present in the text,
// in [0, 1]. The distribution is intentionally coarse; the retrieval engine
// blends it conservatively against the original similarity.
func (s *LexicalScorer) Score(_ context.Context, query, text string) (float64, error) {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return 0, nil
	}
	textTerms := termSet(text)

	matched := 0
	for term := range queryTerms {
		if _, ok := textTerms[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms)), nil
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if term := b.String(); len(term) > 2 {
			terms[term] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return terms
}
