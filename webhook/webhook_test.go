package webhook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/pause"
	"github.com/abarwater/aqua-router/orchestrator"
)

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHandleVerifyEchoesChallengeAsInteger(t *testing.T) {
	app := fiber.New()
	Register(app, "/webhook", &Handler{Orchestrator: &orchestrator.Orchestrator{}, VerifyToken: "secret", Logger: silentLogger()})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "12345", string(body))
}

func TestHandleVerifyRejectsWrongToken(t *testing.T) {
	app := fiber.New()
	Register(app, "/webhook", &Handler{Orchestrator: &orchestrator.Orchestrator{}, VerifyToken: "secret", Logger: silentLogger()})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleVerifyRejectsNonNumericChallenge(t *testing.T) {
	app := fiber.New()
	Register(app, "/webhook", &Handler{Orchestrator: &orchestrator.Orchestrator{}, VerifyToken: "secret", Logger: silentLogger()})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=abc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleInboundRejectsMissingRequiredFields(t *testing.T) {
	app := fiber.New()
	Register(app, "/webhook", &Handler{Orchestrator: &orchestrator.Orchestrator{}, VerifyToken: "secret", Logger: silentLogger()})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// slowPause blocks IsPaused long enough to exceed the handler's budget,
// exercising the "acknowledge and continue asynchronously" path.
type slowPause struct{}

func (slowPause) IsPaused(ctx context.Context, conversationID string) (bool, error) {
	time.Sleep(200 * time.Millisecond)
	return false, nil
}
func (slowPause) CreatePause(ctx context.Context, conversationID, phone, agent string, ttl time.Duration) (pause.Pause, error) {
	return pause.Pause{}, nil
}
func (slowPause) Info(ctx context.Context, conversationID string) (pause.Info, bool, error) {
	return pause.Info{}, false, nil
}

type slowConversation struct{}

func (slowConversation) UpsertUser(ctx context.Context, phone string) (conversation.User, error) {
	return conversation.User{ID: 1, Phone: phone}, nil
}
func (slowConversation) RecordInbound(ctx context.Context, user conversation.User, text string, lang conversation.Language, gatewayID string) (conversation.InboundMessage, error) {
	return conversation.InboundMessage{ID: 1}, nil
}
func (slowConversation) SetIntent(ctx context.Context, inboundID uint, intent conversation.Intent) error {
	return nil
}
func (slowConversation) RecordReply(ctx context.Context, inboundID uint, text string, lang conversation.Language) (conversation.BotReply, error) {
	return conversation.BotReply{}, nil
}
func (slowConversation) RecentHistory(ctx context.Context, user conversation.User, n int) ([]conversation.HistoryTurn, error) {
	return nil, nil
}
func (slowConversation) AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error) {
	return false, nil
}
func (slowConversation) PurgeUser(ctx context.Context, phone string) error { return nil }

// fakeTranscriber records the bytes/mimeType it was given and always
// returns a fixed transcription.
type fakeTranscriber struct {
	gotBytes []byte
	gotMime  string
	text     string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioBytes []byte, mimeType string) (string, error) {
	f.gotBytes = audioBytes
	f.gotMime = mimeType
	return f.text, nil
}

// recordingConversation captures the text RecordInbound was called with so
// tests can assert a voice note reached the pipeline as transcribed text.
type recordingConversation struct {
	slowConversation
	gotText string
}

func (r *recordingConversation) RecordInbound(ctx context.Context, user conversation.User, text string, lang conversation.Language, gatewayID string) (conversation.InboundMessage, error) {
	r.gotText = text
	return conversation.InboundMessage{ID: 1}, nil
}

func TestHandleInboundTranscribesAudioBeforeDispatch(t *testing.T) {
	app := fiber.New()
	tr := &fakeTranscriber{text: "مرحبا"}
	conv := &recordingConversation{}
	o := &orchestrator.Orchestrator{Conversation: conv, Pause: slowPause{}}
	Register(app, "/webhook", &Handler{Orchestrator: o, Transcriber: tr, VerifyToken: "secret", Logger: silentLogger()})

	audioBytes := []byte("fake-ogg-bytes")
	body, err := json.Marshal(map[string]any{
		"waId": "966501234567",
		"id":   "w-audio-1",
		"type": "audio",
		"audio": map[string]string{
			"data":     base64.StdEncoding.EncodeToString(audioBytes),
			"mimeType": "audio/ogg",
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, int(time.Second.Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, audioBytes, tr.gotBytes)
	assert.Equal(t, "audio/ogg", tr.gotMime)
	assert.Equal(t, "مرحبا", conv.gotText)
}

func TestHandleInboundDropsAudioWithoutTranscriber(t *testing.T) {
	app := fiber.New()
	conv := &recordingConversation{gotText: "untouched"}
	o := &orchestrator.Orchestrator{Conversation: conv, Pause: slowPause{}}
	Register(app, "/webhook", &Handler{Orchestrator: o, VerifyToken: "secret", Logger: silentLogger()})

	body := []byte(`{"waId":"966501234567","id":"w-audio-2","type":"audio","audio":{"data":"Zm9v","mimeType":"audio/ogg"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, int(time.Second.Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "untouched", conv.gotText)
}

func TestHandleInboundAcknowledgesWithinBudgetEvenIfPipelineIsSlow(t *testing.T) {
	app := fiber.New()
	o := &orchestrator.Orchestrator{
		Conversation: slowConversation{},
		Pause:        slowPause{},
	}
	Register(app, "/webhook", &Handler{Orchestrator: o, VerifyToken: "secret", Logger: silentLogger(), Budget: 20 * time.Millisecond})

	body := []byte(`{"waId":"966501234567","id":"w1","type":"text","text":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := app.Test(req, int(time.Second.Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, elapsed, 500*time.Millisecond)
}
