package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askbase/askbase/internal/domain"
)

func retrievalOf(texts ...string) *domain.RetrievalResult {
	r := &domain.RetrievalResult{}
	for i, text := range texts {
		r.Chunks = append(r.Chunks, domain.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			DocumentID: "doc-1",
			Ordinal:    i,
			Text:       text,
		})
		r.Scores = append(r.Scores, 1.0-float64(i)*0.1)
	}
	return r
}

func TestBuildPrompt_IncludesChunksInRankOrder(t *testing.T) {
	result := retrievalOf("best match", "second match", "third match")

	prompt, included := BuildPrompt("what is up?", result, 0)
	assert.Equal(t, 3, included)
	assert.Contains(t, prompt, "what is up?")

	first := strings.Index(prompt, "best match")
	second := strings.Index(prompt, "second match")
	third := strings.Index(prompt, "third match")
	assert.True(t, first < second && second < third)
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	result := retrievalOf("alpha", "beta")

	a, _ := BuildPrompt("q", result, 100)
	b, _ := BuildPrompt("q", result, 100)
	assert.Equal(t, a, b)
}

func TestBuildPrompt_BudgetDropsLowestScoredFirst(t *testing.T) {
	long := strings.Repeat("x", 50)
	result := retrievalOf(long, long, long)

	prompt, included := BuildPrompt("q", result, 120)
	assert.Equal(t, 2, included)
	assert.Equal(t, 2, strings.Count(prompt, long))
}

func TestBuildPrompt_FirstChunkAlwaysIncluded(t *testing.T) {
	result := retrievalOf(strings.Repeat("y", 500))

	_, included := BuildPrompt("q", result, 100)
	assert.Equal(t, 1, included)
}

func TestBuildPrompt_EmptyCorpus(t *testing.T) {
	prompt, included := BuildPrompt("hello", &domain.RetrievalResult{}, 1000)
	assert.Equal(t, 0, included)
	assert.Contains(t, prompt, "No relevant context was found")
	assert.Contains(t, prompt, "hello")

	nilPrompt, _ := BuildPrompt("hello", nil, 1000)
	assert.Equal(t, prompt, nilPrompt)
}
