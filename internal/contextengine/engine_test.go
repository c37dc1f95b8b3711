package contextengine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhacksman/feedeater/internal/store"
)

func TestBuildPromptIncludesPriorSummaryAndItems(t *testing.T) {
	now := time.Now()
	candidates := []candidateRecord{
		{RecordID: "a", Text: "item a", CollectedAt: now},
		{RecordID: "b", Text: "item b", CollectedAt: now.Add(time.Minute)},
	}
	prompt := buildPrompt("previous summary", candidates)
	assert.True(t, strings.Contains(prompt, "previous summary"))
	assert.True(t, strings.Contains(prompt, "item a"))
	assert.True(t, strings.Contains(prompt, "item b"))
}

func TestBuildPromptBoundedToMaxChars(t *testing.T) {
	var candidates []candidateRecord
	for i := 0; i < 2000; i++ {
		candidates = append(candidates, candidateRecord{
			RecordID:    "id",
			Text:        strings.Repeat("x", 50),
			CollectedAt: time.Now(),
		})
	}
	prompt := buildPrompt("", candidates)
	assert.LessOrEqual(t, len(prompt), MaxPromptChars)
}

func TestTruncateShortString(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 128))
}

func TestTruncateLongString(t *testing.T) {
	s := strings.Repeat("a", 200)
	assert.Len(t, truncate(s, 128), 128)
}

func TestRankByRelevanceOrdersByCosineDistanceThenRecencyThenID(t *testing.T) {
	now := time.Now()
	query := store.Vector{1, 0}
	candidates := []candidateRecord{
		{RecordID: "z", Embedding: store.Vector{0, 1}, CollectedAt: now}, // orthogonal: distance 1
		{RecordID: "a", Embedding: store.Vector{1, 0}, CollectedAt: now.Add(-time.Hour)}, // identical: distance 0
		{RecordID: "b", Embedding: store.Vector{1, 0}, CollectedAt: now}, // identical, more recent
	}
	rankByRelevance(candidates, query)

	require.Len(t, candidates, 3)
	assert.Equal(t, "b", candidates[0].RecordID) // same distance as "a" but more recent
	assert.Equal(t, "a", candidates[1].RecordID)
	assert.Equal(t, "z", candidates[2].RecordID)
}
