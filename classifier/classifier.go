// Package classifier implements C7: intent assignment for an inbound
// message via a fast keyword path and an LLM fallback, grounded on
// original_source/agents/message_classifier.py::classify_message.
package classifier

import (
	"context"
	"strings"

	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/llm"
	"github.com/abarwater/aqua-router/langutil"
)

// sahtakKeywords forces intent=inquiry regardless of context (spec §4.4
// fast path 1), grounded on the original's sahtak_keywords list.
var sahtakKeywords = []string{"صحتك", "مياه صحتك", "موية صحتك", "مياة صحتك"}

const systemPrompt = `You are a classification assistant for Abar, a Saudi bottled-water delivery company that receives WhatsApp messages from customers.

Assign exactly one label, written in Arabic, from this closed set:
طلب خدمة | استفسار | شكوى | اقتراح أو ملاحظة | تحية | شكر | أخرى

Rules:
- A short reply following a bot question about a city or brand name is استفسار.
- Pure thanks ("شكراً", "تسلم", "راضي تماماً") is شكر.
- Pure greeting only ("السلام عليكم", "مرحبا") is تحية.
- Any mention of products, brands, or cities is استفسار, never أخرى.
- Output only the label, nothing else.`

var labelToIntent = map[string]conversation.Intent{
	"طلب خدمة":       conversation.IntentServiceRequest,
	"استفسار":        conversation.IntentInquiry,
	"شكوى":           conversation.IntentComplaint,
	"اقتراح أو ملاحظة": conversation.IntentSuggestion,
	"تحية":           conversation.IntentGreeting,
	"شكر":            conversation.IntentThanking,
	"أخرى":           conversation.IntentOther,
}

// Result is the outcome of Classify: an intent (nil on parse failure,
// downstream treats that as "route to humans"). Complaint/suggestion
// records are written by Classify itself through Feedback, not returned.
type Result struct {
	Intent *conversation.Intent
}

// Classifier assigns intents to inbound messages.
type Classifier struct {
	Chat       llm.ChatProvider
	Translator *langutil.Translator
	Feedback   conversation.FeedbackStore
}

// Classify implements spec §4.4. history is oldest-first, already capped
// to conversation.DefaultHistorySize by the caller. inboundID identifies
// the already-persisted InboundMessage, used only to attach a
// complaint/suggestion side record when applicable.
func (c *Classifier) Classify(ctx context.Context, inboundID uint, text string, history []conversation.HistoryTurn) (Result, error) {
	if containsSahtak(text) {
		intent := conversation.IntentInquiry
		return Result{Intent: &intent}, nil
	}

	textToClassify := text
	if len(history) == 0 && langutil.Detect(text) == conversation.LanguageEnglish && c.Translator != nil {
		translated, err := c.Translator.TranslateTo(ctx, text, conversation.LanguageArabic)
		if err == nil && strings.TrimSpace(translated) != "" {
			textToClassify = translated
		}
	}

	resp, err := c.Chat.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		History:      toLLMHistory(history),
		UserText:     textToClassify,
		Temperature:  llm.MaxTemperatureDeterministic,
		MaxTokens:    20,
	})
	if err != nil {
		return Result{}, err
	}

	label := strings.TrimSpace(resp.Text)
	intent, ok := labelToIntent[label]
	if !ok {
		return Result{Intent: nil}, nil
	}

	if c.Feedback != nil {
		switch intent {
		case conversation.IntentComplaint:
			if _, err := c.Feedback.RecordComplaint(ctx, inboundID, text); err != nil {
				return Result{}, err
			}
		case conversation.IntentSuggestion:
			if _, err := c.Feedback.RecordSuggestion(ctx, inboundID, text); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{Intent: &intent}, nil
}

func containsSahtak(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range sahtakKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func toLLMHistory(history []conversation.HistoryTurn) []llm.ChatTurn {
	turns := make([]llm.ChatTurn, 0, len(history))
	for _, h := range history {
		turns = append(turns, llm.ChatTurn{Role: h.Role, Text: h.Content})
	}
	return turns
}
