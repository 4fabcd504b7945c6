// Package resolver implements C8: decide whether an inbound message can be
// answered straight from the knowledge index, grounded on spec §4.6 and
// the precedence decision recorded in DESIGN.md (below 0.50 continue,
// then the language fence, then the 0.60 reply threshold, evaluator LLM
// only in the [0.50,0.60) band).
package resolver

import (
	"context"
	"strings"

	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/knowledge"
	"github.com/abarwater/aqua-router/domain/llm"
	"github.com/abarwater/aqua-router/langutil"
)

// Action is the resolver's verdict.
type Action string

const (
	ActionReply    Action = "reply"
	ActionSkip     Action = "skip"
	ActionContinue Action = "continue"
)

const (
	lowThreshold  = 0.50
	highThreshold = 0.60
	searchK       = 3
	evaluatorHistorySize = 3
)

// Result is the C8 return value.
type Result struct {
	Action           Action
	Response         string
	MatchedQuestion  string
	Confidence       float64
}

// Resolver answers from the knowledge index when confident enough.
type Resolver struct {
	Index knowledge.Index
	Chat  llm.ChatProvider
}

// Resolve implements spec §4.6 steps 1-8. history is oldest-first.
func (r *Resolver) Resolve(ctx context.Context, text string, history []conversation.HistoryTurn) (Result, error) {
	userLang := langutil.Detect(text)

	matches, err := r.Index.Search(ctx, text, searchK)
	if err != nil {
		return Result{}, err
	}
	if len(matches) == 0 {
		return Result{Action: ActionContinue}, nil
	}

	best := matches[0]
	if best.Similarity < lowThreshold {
		return Result{Action: ActionContinue, Confidence: best.Similarity}, nil
	}

	answer := strings.TrimSpace(best.Metadata.AnswerText)
	if answer == "" || equalsFold(answer, best.Question) || len([]rune(answer)) < 3 {
		return Result{Action: ActionSkip, Confidence: best.Similarity}, nil
	}

	answerLang := langutil.Detect(answer)
	if answerLang != userLang {
		return Result{Action: ActionSkip, Confidence: best.Similarity}, nil
	}

	if best.Similarity >= highThreshold {
		return Result{
			Action:          ActionReply,
			Response:        answer,
			MatchedQuestion: best.Question,
			Confidence:      best.Similarity,
		}, nil
	}

	return r.evaluate(ctx, text, history, best)
}

const evaluatorSystemPrompt = `You decide whether a candidate answer from a knowledge base should be sent to a WhatsApp customer of a Saudi bottled-water delivery company.

Reply with exactly one of: reply | skip | continue

Rules:
- "reply" is allowed ONLY when the customer's message is PURELY a greeting or PURELY an expression of thanks, with no request, question, or scheduling information mixed in.
- Anything else that also contains a request, a question, or scheduling information must be "continue".
- If the candidate answer does not actually address the message, use "continue".
Output only the single word.`

func (r *Resolver) evaluate(ctx context.Context, text string, history []conversation.HistoryTurn, best knowledge.Match) (Result, error) {
	recent := history
	if len(recent) > evaluatorHistorySize {
		recent = recent[len(recent)-evaluatorHistorySize:]
	}

	turns := make([]llm.ChatTurn, 0, len(recent))
	for _, h := range recent {
		turns = append(turns, llm.ChatTurn{Role: h.Role, Text: h.Content})
	}

	prompt := "Customer message: " + text +
		"\nMatched question: " + best.Question +
		"\nCandidate answer: " + best.Metadata.AnswerText

	resp, err := r.Chat.Chat(ctx, llm.ChatRequest{
		SystemPrompt: evaluatorSystemPrompt,
		History:      turns,
		UserText:     prompt,
		Temperature:  llm.MaxTemperatureDeterministic,
		MaxTokens:    10,
	})
	if err != nil {
		return Result{}, err
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Text))
	switch verdict {
	case "reply":
		if !isPureGreetingOrThanks(text) {
			return Result{Action: ActionContinue, Confidence: best.Similarity}, nil
		}
		return Result{
			Action:          ActionReply,
			Response:        best.Metadata.AnswerText,
			MatchedQuestion: best.Question,
			Confidence:      best.Similarity,
		}, nil
	case "skip":
		return Result{Action: ActionSkip, Confidence: best.Similarity}, nil
	default:
		return Result{Action: ActionContinue, Confidence: best.Similarity}, nil
	}
}

// isPureGreetingOrThanks additionally gates the evaluator's own "reply"
// verdict per the Design Note §9 precedence decision: the evaluator may
// say reply, but this system still enforces that the message itself
// carries nothing beyond a greeting/thanks.
func isPureGreetingOrThanks(text string) bool {
	normalized := strings.TrimSpace(langutil.NormalizeArabic(text))
	for _, phrase := range pureGreetingThanksPhrases {
		if equalsFold(normalized, langutil.NormalizeArabic(phrase)) {
			return true
		}
	}
	return false
}

var pureGreetingThanksPhrases = []string{
	"السلام عليكم", "مرحبا", "هلا", "صباح الخير", "مساء الخير",
	"شكرا", "شكراً", "مشكور", "يعطيك العافية", "تسلم", "راضي تماما", "راضي تماماً",
}

func equalsFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
