package usecase

import (
	"strings"
	"unicode"

	"github.com/asafonov/docqa/internal/core/domain"
)

// Per-document caps for the two retrieval paths. Independent tunables.
const (
	hybridMaxChunksPerDoc = 2
	vectorMaxChunksPerDoc = 4

	fingerprintChars    = 100
	dedupJaccardCeiling = 0.5
	dedupMinTokenLength = 3
)

// dedupByDocument walks the candidates in rank order, capping chunks per
// document and dropping near-duplicates within one document. Two chunks are
// duplicates when their edge fingerprints match or their token Jaccard
// similarity exceeds the ceiling.
func dedupByDocument(chunks []domain.ScoredChunk, maxPerDoc int) []domain.ScoredChunk {
	if maxPerDoc <= 0 || len(chunks) == 0 {
		return chunks
	}

	kept := make([]domain.ScoredChunk, 0, len(chunks))
	perDoc := make(map[string][]domain.ScoredChunk)

	for _, chunk := range chunks {
		existing := perDoc[chunk.DocumentID]
		if len(existing) >= maxPerDoc {
			continue
		}
		duplicate := false
		for _, prior := range existing {
			if isDuplicateContent(prior.Content, chunk.Content) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		perDoc[chunk.DocumentID] = append(existing, chunk)
		kept = append(kept, chunk)
	}

	return kept
}

func isDuplicateContent(a, b string) bool {
	headA, tailA := contentFingerprint(a)
	headB, tailB := contentFingerprint(b)
	if headA == headB || tailA == tailB {
		return true
	}
	return contentTokenJaccard(a, b) > dedupJaccardCeiling
}

// contentFingerprint returns the normalized first and last 100 characters.
func contentFingerprint(content string) (string, string) {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	runes := []rune(normalized)
	if len(runes) <= fingerprintChars {
		return normalized, normalized
	}
	return string(runes[:fingerprintChars]), string(runes[len(runes)-fingerprintChars:])
}

func contentTokenJaccard(a, b string) float64 {
	setA := dedupTokenSet(a)
	setB := dedupTokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func dedupTokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 32)
	var b strings.Builder
	flush := func() {
		if token := b.String(); len([]rune(token)) >= dedupMinTokenLength {
			out[token] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}
