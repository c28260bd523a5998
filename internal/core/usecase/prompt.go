package usecase

import (
	"fmt"
	"strings"

	"github.com/asafonov/docqa/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n")
	b.WriteString("If the context does not contain the answer, say so explicitly.\n")
	b.WriteString("Cite the document name when you use a passage.\n\nContext:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, chunk.DocumentName, strings.TrimSpace(chunk.Content))
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

func buildFollowUpRewritePrompt(query string, history []domain.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, content))
	}
	return fmt.Sprintf(`Rewrite the user's latest question into a self-contained question.
Resolve pronouns and references using the conversation below.
Return only the rewritten question, nothing else.

Conversation:
%s

Latest question: %s`, strings.Join(lines, "\n"), query)
}

func buildClarifyPrompt(query string) string {
	return fmt.Sprintf(`The user asked a very short or broad question about a document collection.
Write exactly one clarifying question that would make the request answerable.
Return only the question.

User question: %s`, query)
}

func buildExpansionPrompt(query string, keyTerms []string) string {
	terms := "(none)"
	if len(keyTerms) > 0 {
		terms = strings.Join(keyTerms, ", ")
	}
	return fmt.Sprintf(`Expand the search query below with synonyms and closely related terms.
Return a single line: the original query followed by the added terms.

Query: %s
Key terms: %s`, query, terms)
}

func buildGeneralKnowledgePrompt(query string) string {
	return fmt.Sprintf(`No relevant passages were found in the document collection.
Answer the question from general knowledge. State clearly that the answer
is not based on the user's documents.

Question: %s`, query)
}
