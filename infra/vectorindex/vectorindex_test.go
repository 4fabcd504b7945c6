package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abarwater/aqua-router/domain/knowledge"
	"github.com/abarwater/aqua-router/langutil"
)

// hashEmbedder produces a deterministic low-dimensional vector from the
// normalized text so near-duplicate questions land close together without
// pulling in a real embeddings API during tests.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	norm := langutil.NormalizeArabic(text)
	vec := make([]float32, 16)
	for i, r := range norm {
		vec[i%len(vec)] += float32(r%97) + 1
	}
	return vec, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := New(context.Background(), filepath.Join(dir, "knowledge.db"), hashEmbedder{})
	require.NoError(t, err)
	return idx
}

func TestAddAndSearchRoundTrip(t *testing.T) {
	idx := newTestIndex(t)

	result, err := idx.Add(context.Background(), []knowledge.Entry{
		{Question: "وش المدن المتاحة", Answer: "نخدم الرياض وجدة", Metadata: knowledge.Metadata{Category: "coverage"}},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 0, result.Skipped)

	matches, err := idx.Search(context.Background(), "وش المدن المتاحة", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "نخدم الرياض وجدة", matches[0].Answer)
	assert.Equal(t, "coverage", matches[0].Metadata.Category)
}

func TestAddSkipsDuplicateAboveThreshold(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Add(context.Background(), []knowledge.Entry{
		{Question: "كيف اطلب مويه", Answer: "تقدر تطلب عبر واتساب"},
	}, false)
	require.NoError(t, err)

	// Same question, re-submitted with duplicate checking on: the hash
	// embedder maps identical normalized text to an identical vector, so
	// similarity is 1.0, well above DuplicateSimilarityThreshold.
	result, err := idx.Add(context.Background(), []knowledge.Entry{
		{Question: "كيف اطلب مويه", Answer: "تقدر تطلب عبر واتساب"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Skipped)
}

func TestSearchOnEmptyIndexReturnsNoMatches(t *testing.T) {
	idx := newTestIndex(t)
	matches, err := idx.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteByQuestionTextRemovesExactMatch(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Add(context.Background(), []knowledge.Entry{
		{Question: "هل عندكم توصيل اليوم", Answer: "نعم نوصل اليوم"},
	}, false)
	require.NoError(t, err)

	deleted, err := idx.DeleteByQuestionText(context.Background(), "هل عندكم توصيل اليوم")
	require.NoError(t, err)
	assert.True(t, deleted)

	matches, err := idx.Search(context.Background(), "هل عندكم توصيل اليوم", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStatsCountsAnswersAndCategories(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Add(context.Background(), []knowledge.Entry{
		{Question: "q1", Answer: "a1", Metadata: knowledge.Metadata{Category: "pricing"}},
		{Question: "q2", Answer: "", Metadata: knowledge.Metadata{Category: "pricing"}},
	}, false)
	require.NoError(t, err)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.AnswersWithText)
	assert.Equal(t, 2, stats.ByCategory["pricing"])
}
