// Package rag runs the retrieval-augmented query pipeline: embed the
// question, retrieve the closest chunks, assemble a prompt, and stream the
// generated answer back to the caller.
package rag

import (
	"fmt"
	"strings"

	"github.com/askbase/askbase/internal/domain"
)

// DefaultContextBudget bounds the total characters of retrieved context
// included in a prompt. Chunks beyond the budget are dropped lowest-scored
// first.
const DefaultContextBudget = 12000

const chunkSeparator = "\n\n---\n\n"

// promptTemplate is deterministic: same question and same retrieval result
// always assemble the same prompt.
const promptTemplate = `Answer the user's question using the context below.

Context:
%s

Question: %s

Provide an accurate, concise answer grounded in the context. If the context does not contain the answer, say so.`

// emptyCorpusTemplate is used when retrieval produced no chunks. The model
// is told explicitly that the knowledge base had nothing to offer.
const emptyCorpusTemplate = `Answer the user's question.

No relevant context was found in the knowledge base for this question. Answer from general knowledge and mention that the knowledge base contained no matching content.

Question: %s`

// BuildPrompt assembles the generation prompt from the question and the
// retrieved chunks, which must already be in descending score order. Chunks
// are included until their combined text exceeds budget characters; the
// remainder is dropped. It returns the prompt and how many chunks were
// included.
func BuildPrompt(question string, retrieved *domain.RetrievalResult, budget int) (string, int) {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	if retrieved == nil || len(retrieved.Chunks) == 0 {
		return fmt.Sprintf(emptyCorpusTemplate, question), 0
	}

	var b strings.Builder
	included := 0
	used := 0
	for _, c := range retrieved.Chunks {
		cost := len(c.Text)
		if included > 0 {
			cost += len(chunkSeparator)
		}
		if used+cost > budget && included > 0 {
			break
		}
		if included > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(c.Text)
		used += cost
		included++
	}

	return fmt.Sprintf(promptTemplate, b.String(), question), included
}
