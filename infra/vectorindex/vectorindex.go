// Package vectorindex implements domain/knowledge.Index on
// github.com/philippgille/chromem-go, grounded on
// Qefaraki-picoclaw/pkg/memory/vectorstore.go's persistent-DB wrapper.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/abarwater/aqua-router/domain/knowledge"
	"github.com/abarwater/aqua-router/domain/llm"
	"github.com/abarwater/aqua-router/langutil"
)

const collectionName = "knowledge_entries"

// Index wraps a single chromem-go collection of question documents, with
// answer and metadata carried as document metadata (spec §4.3 invariant
// i/ii: the answer is never itself embedded).
type Index struct {
	collection *chromem.Collection
}

// New opens (or creates) a persistent chromem-go DB at path and its
// knowledge_entries collection, embedding with embedder.
func New(ctx context.Context, path string, embedder llm.Embedder) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open db: %w", err)
	}

	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get or create collection: %w", err)
	}
	return &Index{collection: collection}, nil
}

func (idx *Index) Add(ctx context.Context, entries []knowledge.Entry, checkDuplicates bool) (knowledge.AddResult, error) {
	result := knowledge.AddResult{}

	for _, entry := range entries {
		normalizedQuestion := langutil.NormalizeArabic(entry.Question)

		if checkDuplicates {
			dup, err := idx.hasDuplicate(ctx, normalizedQuestion)
			if err != nil {
				return result, err
			}
			if dup {
				result.Skipped++
				continue
			}
		}

		id := entry.ID
		if id == "" {
			id = strconv.Itoa(idx.collection.Count() + result.Added)
		}

		doc := chromem.Document{
			ID:       id,
			Content:  normalizedQuestion,
			Metadata: metadataToFields(entry.Answer, entry.Metadata),
		}
		if err := idx.collection.AddDocument(ctx, doc); err != nil {
			return result, fmt.Errorf("vectorindex: add document: %w", err)
		}
		result.Added++
	}

	return result, nil
}

func (idx *Index) hasDuplicate(ctx context.Context, normalizedQuestion string) (bool, error) {
	if idx.collection.Count() == 0 {
		return false, nil
	}
	limit := 1
	results, err := idx.collection.Query(ctx, normalizedQuestion, limit, nil, nil)
	if err != nil {
		return false, fmt.Errorf("vectorindex: duplicate check query: %w", err)
	}
	if len(results) == 0 {
		return false, nil
	}
	return float64(results[0].Similarity) >= knowledge.DuplicateSimilarityThreshold, nil
}

func (idx *Index) Search(ctx context.Context, query string, k int) ([]knowledge.Match, error) {
	if idx.collection.Count() == 0 {
		return nil, nil
	}
	if k > idx.collection.Count() {
		k = idx.collection.Count()
	}

	normalizedQuery := langutil.NormalizeArabic(query)
	results, err := idx.collection.Query(ctx, normalizedQuery, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	matches := make([]knowledge.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, knowledge.Match{
			Question:   r.Content,
			Answer:     r.Metadata["answer_text"],
			Similarity: float64(r.Similarity),
			Metadata:   fieldsToMetadata(r.Metadata),
		})
	}
	return matches, nil
}

func (idx *Index) DeleteByQuestionText(ctx context.Context, text string) (bool, error) {
	normalized := langutil.NormalizeArabic(text)
	if idx.collection.Count() == 0 {
		return false, nil
	}

	results, err := idx.collection.Query(ctx, normalized, 1, nil, nil)
	if err != nil {
		return false, fmt.Errorf("vectorindex: lookup before delete: %w", err)
	}
	if len(results) == 0 || langutil.NormalizeArabic(results[0].Content) != normalized {
		return false, nil
	}

	if err := idx.collection.Delete(ctx, nil, nil, results[0].ID); err != nil {
		return false, fmt.Errorf("vectorindex: delete: %w", err)
	}
	return true, nil
}

func (idx *Index) Stats(ctx context.Context) (knowledge.Stats, error) {
	stats := knowledge.Stats{
		Total:      idx.collection.Count(),
		Questions:  idx.collection.Count(),
		ByCategory: make(map[string]int),
	}

	docs, err := idx.collection.Query(ctx, "", stats.Total, nil, nil)
	if err != nil {
		// an empty-string query is only used for stats; on failure fall
		// back to what Count() already told us rather than erroring out
		// a read-only diagnostic endpoint.
		return stats, nil
	}
	for _, d := range docs {
		if strings.TrimSpace(d.Metadata["answer_text"]) != "" {
			stats.AnswersWithText++
		}
		if cat := d.Metadata["category"]; cat != "" {
			stats.ByCategory[cat]++
		}
	}
	return stats, nil
}

func metadataToFields(answer string, md knowledge.Metadata) map[string]string {
	fields := map[string]string{
		"answer_text": answer,
		"category":    md.Category,
		"language":    md.Language,
		"priority":    strconv.Itoa(md.Priority),
		"source":      md.Source,
		"has_answer":  strconv.FormatBool(md.HasAnswer || strings.TrimSpace(answer) != ""),
	}
	for k, v := range md.Extra {
		fields["extra_"+k] = v
	}
	return fields
}

func fieldsToMetadata(fields map[string]string) knowledge.Metadata {
	md := knowledge.Metadata{
		Category:   fields["category"],
		Language:   fields["language"],
		Source:     fields["source"],
		AnswerText: fields["answer_text"],
		Extra:      make(map[string]string),
	}
	md.Priority, _ = strconv.Atoi(fields["priority"])
	md.HasAnswer, _ = strconv.ParseBool(fields["has_answer"])
	for k, v := range fields {
		if strings.HasPrefix(k, "extra_") {
			md.Extra[strings.TrimPrefix(k, "extra_")] = v
		}
	}
	return md
}
