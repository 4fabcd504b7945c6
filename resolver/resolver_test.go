package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abarwater/aqua-router/domain/knowledge"
	"github.com/abarwater/aqua-router/domain/llm"
)

type fakeIndex struct {
	matches []knowledge.Match
	err     error
}

func (f *fakeIndex) Add(ctx context.Context, entries []knowledge.Entry, checkDuplicates bool) (knowledge.AddResult, error) {
	return knowledge.AddResult{}, nil
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]knowledge.Match, error) {
	return f.matches, f.err
}

func (f *fakeIndex) DeleteByQuestionText(ctx context.Context, text string) (bool, error) {
	return false, nil
}

func (f *fakeIndex) Stats(ctx context.Context) (knowledge.Stats, error) {
	return knowledge.Stats{}, nil
}

type fakeChat struct {
	text string
	err  error
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return llm.ChatResponse{Text: f.text}, f.err
}

func TestResolveNoMatchesContinues(t *testing.T) {
	r := &Resolver{Index: &fakeIndex{}}
	res, err := r.Resolve(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, res.Action)
}

func TestResolveBelowLowThresholdContinues(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{Question: "q", Similarity: 0.3, Metadata: knowledge.Metadata{AnswerText: "answer text here"}}}}
	r := &Resolver{Index: idx}
	res, err := r.Resolve(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, res.Action)
}

func TestResolveAboveHighThresholdReplies(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "what cities do you serve",
		Similarity: 0.9,
		Metadata:   knowledge.Metadata{AnswerText: "We serve Riyadh and Jeddah."},
	}}}
	r := &Resolver{Index: idx}
	res, err := r.Resolve(context.Background(), "which cities", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionReply, res.Action)
	assert.Equal(t, "We serve Riyadh and Jeddah.", res.Response)
}

func TestResolveEmptyAnswerSkips(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "q",
		Similarity: 0.9,
		Metadata:   knowledge.Metadata{AnswerText: ""},
	}}}
	r := &Resolver{Index: idx}
	res, err := r.Resolve(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
}

func TestResolveLanguageFenceSkipsOnMismatch(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "what cities do you serve",
		Similarity: 0.9,
		Metadata:   knowledge.Metadata{AnswerText: "نحن نخدم الرياض وجدة"},
	}}}
	r := &Resolver{Index: idx}
	res, err := r.Resolve(context.Background(), "which cities do you serve", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
}

func TestResolveMidBandDefersToEvaluator(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "مرحبا",
		Similarity: 0.55,
		Metadata:   knowledge.Metadata{AnswerText: "وعليكم السلام"},
	}}}
	chat := &fakeChat{text: "reply"}
	r := &Resolver{Index: idx, Chat: chat}

	res, err := r.Resolve(context.Background(), "مرحبا", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionReply, res.Action)
}

func TestResolveMidBandEvaluatorReplyGatedByPureGreeting(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "مرحبا كيف اطلب مويه",
		Similarity: 0.55,
		Metadata:   knowledge.Metadata{AnswerText: "وعليكم السلام"},
	}}}
	chat := &fakeChat{text: "reply"}
	r := &Resolver{Index: idx, Chat: chat}

	// The message itself is a greeting plus a request, so even though the
	// evaluator says "reply" the precedence gate must still reject it.
	res, err := r.Resolve(context.Background(), "مرحبا كيف اطلب مويه", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, res.Action)
}

func TestResolveMidBandEvaluatorSkip(t *testing.T) {
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "q",
		Similarity: 0.52,
		Metadata:   knowledge.Metadata{AnswerText: "some answer"},
	}}}
	chat := &fakeChat{text: "skip"}
	r := &Resolver{Index: idx, Chat: chat}

	res, err := r.Resolve(context.Background(), "some message", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
}
