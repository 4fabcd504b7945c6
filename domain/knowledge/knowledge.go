// Package knowledge defines the C4 Knowledge Index contract: an
// embedding-backed similarity search over Q&A entries. The vector-store
// adapter lives in infra/vectorindex; this package stays free of any
// chromem-go types, mirroring the teacher's domain/provider split.
package knowledge

import "context"

// Metadata is the tagged record Design Note §9 asks for in place of a bare
// map[string]any: well-known fields plus a typed escape hatch for anything
// an entry's source system attaches that this pipeline doesn't model yet.
type Metadata struct {
	Category   string
	Language   string
	Priority   int
	Source     string
	HasAnswer  bool
	AnswerText string
	Extra      map[string]string
}

// Entry is one stored Q&A pair. Only Question is embedded; Answer travels
// as metadata (spec §4.3 invariant ii).
type Entry struct {
	ID       string
	Question string
	Answer   string
	Metadata Metadata
}

// Match is one search result.
type Match struct {
	Question   string
	Answer     string
	Similarity float64
	Metadata   Metadata
}

// AddResult reports how many entries were stored versus skipped as
// duplicates.
type AddResult struct {
	Added   int
	Skipped int
}

// Stats is the C4 diagnostic summary.
type Stats struct {
	Total           int
	Questions       int
	AnswersWithText int
	ByCategory      map[string]int
}

// DuplicateSimilarityThreshold is the cosine-similarity floor above which
// a new question is treated as a duplicate of an existing one (spec §4.3).
const DuplicateSimilarityThreshold = 0.85

// Index is the C4 contract.
type Index interface {
	// Add embeds each entry's question (after Arabic normalization) and
	// stores answer+metadata alongside it. When checkDuplicates is true,
	// an entry whose question has cosine similarity >= 0.85 with an
	// existing one is skipped.
	Add(ctx context.Context, entries []Entry, checkDuplicates bool) (AddResult, error)

	// Search returns the top-k matches for query, sorted by descending
	// cosine similarity. query is normalized with the same Arabic pipeline
	// as stored text.
	Search(ctx context.Context, query string, k int) ([]Match, error)

	// DeleteByQuestionText removes the entry whose normalized question
	// exactly matches text, reporting whether anything was deleted.
	DeleteByQuestionText(ctx context.Context, text string) (bool, error)

	Stats(ctx context.Context) (Stats, error)
}
