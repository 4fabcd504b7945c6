// Package audio implements C17: optional transcription of inbound voice
// notes before they reach the orchestrator, grounded on the teacher's
// integrations/gemini/gemini.go::generateReplyFromAudio structured-output
// call. Gated on GEMINI_API_KEY per spec §6.5 — when no key is configured
// callers should drop audio messages at admission instead of constructing
// a Transcriber.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

const transcribePrompt = `Listen to this voice message and transcribe literally what the user says.
Return a JSON object with the field "transcription".`

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
}

// Transcriber converts voice-note bytes into text via the Gemini API.
type Transcriber struct {
	APIKey string
	Model  string
}

// New constructs a Transcriber. Returns nil when apiKey is empty so callers
// can treat a nil *Transcriber as "transcription unavailable" uniformly.
func New(apiKey string) *Transcriber {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	return &Transcriber{APIKey: apiKey, Model: defaultModel}
}

// Transcribe returns the literal text spoken in audioBytes (mimeType e.g.
// "audio/ogg"). Never called when the Transcriber is nil; callers drop
// audio at admission in that case (spec §9 "Audio messages").
func (t *Transcriber) Transcribe(ctx context.Context, audioBytes []byte, mimeType string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("audio: new client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: audioBytes}},
			},
		},
	}

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseJsonSchema: &genai.Schema{
			Type: "object",
			Properties: map[string]*genai.Schema{
				"transcription": {
					Type:        "string",
					Description: "A literal transcription of what the user says in the audio",
				},
			},
			Required:         []string{"transcription"},
			PropertyOrdering: []string{"transcription"},
		},
	}

	model := t.Model
	if model == "" {
		model = defaultModel
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("audio: generate content: %w", err)
	}
	if result == nil {
		return "", nil
	}

	var resp transcriptionResponse
	if err := json.Unmarshal([]byte(result.Text()), &resp); err != nil {
		return strings.TrimSpace(result.Text()), nil
	}
	return strings.TrimSpace(resp.Transcription), nil
}
