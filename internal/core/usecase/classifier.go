package usecase

import (
	"regexp"
	"strings"

	"github.com/asafonov/docqa/internal/core/domain"
)

// Adaptive similarity thresholds per query type. A candidate below the
// threshold is not considered relevant.
var adaptiveThresholds = map[domain.QueryType]float64{
	domain.QueryFactual:       0.50,
	domain.QueryExplanatory:   0.40,
	domain.QuerySummarization: 0.35,
	domain.QuerySpecific:      0.55,
	domain.QueryGeneral:       0.45,
	domain.QueryComparative:   0.45,
}

// An explicit document reference lowers the relevance bar: the user has
// already disambiguated intent.
const docRefThreshold = 0.30

var retrievalConfigs = map[domain.QueryType]domain.RetrievalConfig{
	domain.QueryFactual:       {TopK: 5, Threshold: 0.50, UseQueryExpansion: false},
	domain.QueryExplanatory:   {TopK: 8, Threshold: 0.40, UseQueryExpansion: true},
	domain.QuerySummarization: {TopK: 12, Threshold: 0.35, UseQueryExpansion: true},
	domain.QuerySpecific:      {TopK: 4, Threshold: 0.55, UseQueryExpansion: false},
	domain.QueryGeneral:       {TopK: 8, Threshold: 0.45, UseQueryExpansion: true},
	domain.QueryComparative:   {TopK: 10, Threshold: 0.45, UseQueryExpansion: true},
}

// AdaptiveThreshold returns the minimum relevance score for a query type.
func AdaptiveThreshold(queryType domain.QueryType, hasDocRef bool) float64 {
	if hasDocRef {
		return docRefThreshold
	}
	if threshold, ok := adaptiveThresholds[queryType]; ok {
		return threshold
	}
	return adaptiveThresholds[domain.QueryGeneral]
}

// RetrievalConfigFor looks up the fixed retrieval parameters for a
// classification, applying the document-reference threshold override.
func RetrievalConfigFor(cls domain.QueryClassification) domain.RetrievalConfig {
	cfg, ok := retrievalConfigs[cls.Type]
	if !ok {
		cfg = retrievalConfigs[domain.QueryGeneral]
	}
	cfg.Threshold = AdaptiveThreshold(cls.Type, cls.DocumentRef != nil)
	return cfg
}

var (
	quotedPattern    = regexp.MustCompile(`"[^"]+"|'[^']+'|«[^»]+»`)
	factualPattern   = regexp.MustCompile(`^(what|who|when|where|which|is|are|was|were|do|does|did|can|could|will|would|has|have)\b`)
	aboutPattern     = regexp.MustCompile(`(?:tell me about|talk about|about)\s+(.+?)(?:\?|$)`)
	wordSplitPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

const (
	docRefMatchFloor = 0.45
	maxKeyTerms      = 5
	minKeyTermLength = 4
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "about": {}, "from": {},
	"have": {}, "does": {}, "did": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "should": {}, "how": {}, "why": {}, "who": {}, "are": {},
	"was": {}, "were": {}, "tell": {}, "please": {}, "give": {}, "show": {},
	"explain": {}, "summarize": {}, "compare": {}, "difference": {},
	"between": {}, "document": {}, "documents": {}, "their": {}, "there": {},
	"them": {}, "they": {}, "into": {}, "more": {}, "some": {}, "your": {},
}

// Classifier assigns a query type, detects document-name references against
// the known corpus, and extracts diagnostic key terms.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

func (c *Classifier) Classify(query string, knownDocuments []domain.DocumentRef) domain.QueryClassification {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.QueryClassification{Type: domain.QueryGeneral}
	}

	cls := domain.QueryClassification{
		Type:     detectQueryType(trimmed),
		KeyTerms: extractKeyTerms(trimmed),
	}
	if ref, ok := detectDocumentReference(trimmed, knownDocuments); ok {
		cls.DocumentRef = &ref
	}
	return cls
}

// detectQueryType is ordered pattern matching, most specific first.
func detectQueryType(query string) domain.QueryType {
	lower := strings.ToLower(query)

	if quotedPattern.MatchString(query) ||
		strings.Contains(lower, "exact") || strings.Contains(lower, "precise") {
		return domain.QuerySpecific
	}
	if strings.Contains(lower, "compare") || strings.Contains(lower, "versus") ||
		strings.Contains(lower, " vs ") || strings.Contains(lower, "difference") {
		return domain.QueryComparative
	}
	if strings.Contains(lower, "summarize") || strings.Contains(lower, "summary") ||
		strings.Contains(lower, "overview") || strings.Contains(lower, "key points") {
		return domain.QuerySummarization
	}
	if factualPattern.MatchString(lower) && !strings.HasPrefix(lower, "why") && !strings.HasPrefix(lower, "how") {
		return domain.QueryFactual
	}
	if strings.HasPrefix(lower, "why") || strings.HasPrefix(lower, "how") ||
		strings.Contains(lower, "explain") {
		return domain.QueryExplanatory
	}
	return domain.QueryGeneral
}

func extractKeyTerms(query string) []string {
	words := wordSplitPattern.Split(strings.ToLower(query), -1)
	terms := make([]string, 0, maxKeyTerms)
	seen := make(map[string]struct{}, maxKeyTerms)
	for _, word := range words {
		if len([]rune(word)) < minKeyTermLength {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
		if len(terms) == maxKeyTerms {
			break
		}
	}
	return terms
}

// detectDocumentReference fuzzy-matches the query text and "about X" /
// quoted phrases against known document names. The best match above the
// floor wins.
func detectDocumentReference(query string, docs []domain.DocumentRef) (domain.DocumentRef, bool) {
	if len(docs) == 0 {
		return domain.DocumentRef{}, false
	}

	candidates := []string{query}
	lower := strings.ToLower(query)
	if m := aboutPattern.FindStringSubmatch(lower); len(m) == 2 {
		candidates = append(candidates, m[1])
	}
	for _, quoted := range quotedPattern.FindAllString(query, -1) {
		candidates = append(candidates, strings.Trim(quoted, `"'«»`))
	}

	best := domain.DocumentRef{}
	bestScore := 0.0
	for _, doc := range docs {
		for _, candidate := range candidates {
			score := nameMatchScore(candidate, doc.Name)
			if score > bestScore {
				bestScore = score
				best = doc
			}
		}
	}
	if bestScore >= docRefMatchFloor {
		return best, true
	}
	return domain.DocumentRef{}, false
}

// nameMatchScore combines word-set Jaccard, substring containment, and
// positional character overlap.
func nameMatchScore(text, name string) float64 {
	text = strings.ToLower(strings.TrimSpace(text))
	name = strings.ToLower(strings.TrimSpace(stripExtension(name)))
	if text == "" || name == "" {
		return 0
	}

	jaccard := wordSetJaccard(text, name)

	containment := 0.0
	if strings.Contains(text, name) || strings.Contains(name, text) {
		containment = 1.0
	}

	overlap := positionalOverlap(text, name)

	return 0.5*jaccard + 0.3*containment + 0.2*overlap
}

func wordSetJaccard(a, b string) float64 {
	setA := toWordSet(a)
	setB := toWordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func toWordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, word := range wordSplitPattern.Split(s, -1) {
		if word != "" {
			out[word] = struct{}{}
		}
	}
	return out
}

func positionalOverlap(a, b string) float64 {
	runesA := []rune(a)
	runesB := []rune(b)
	n := len(runesA)
	if len(runesB) < n {
		n = len(runesB)
	}
	if n == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < n; i++ {
		if runesA[i] == runesB[i] {
			matches++
		}
	}
	return float64(matches) / float64(n)
}

func stripExtension(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
