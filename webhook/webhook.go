// Package webhook implements C12's inbound leg: the gateway's POST
// delivery and GET verification handshake (spec §6.1), grounded on the
// teacher's infrastructure/whatsapp/adapter/webhook.go for the outbound
// shape mirrored back here, and on validations/newsletter_validation.go
// for the ozzo-validation usage pattern.
package webhook

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/abarwater/aqua-router/orchestrator"
)

// audioPayload is the voice-note body the gateway attaches when type is
// "audio", mirroring the teacher's body["audio"] = {url, mime_type} shape
// (src/infrastructure/whatsapp/event_message.go) except the bytes travel
// base64-encoded in the webhook body rather than by a follow-up download.
type audioPayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// inboundRequest mirrors the gateway's JSON payload (spec §6.1) before it
// is translated into orchestrator.InboundPayload.
type inboundRequest struct {
	WaID                   string         `json:"waId"`
	ID                     string         `json:"id"`
	Type                   string         `json:"type"`
	Text                   string         `json:"text"`
	Audio                  *audioPayload  `json:"audio"`
	ButtonReply            map[string]any `json:"buttonReply"`
	ListReply              map[string]any `json:"listReply"`
	InteractiveButtonReply map[string]any `json:"interactiveButtonReply"`
	FromMe                 bool           `json:"fromMe"`
	Owner                  bool           `json:"owner"`
}

func (r inboundRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.WaID, validation.Required),
		validation.Field(&r.Type, validation.Required),
	)
}

// Transcriber converts a voice note into text ahead of the orchestrator
// (spec §9 "Audio messages"). A nil Transcriber on Handler means audio is
// dropped at admission, matching infra/audio.Transcriber's own nil-means-
// unavailable convention.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBytes []byte, mimeType string) (string, error)
}

// Handler wires the webhook routes to an Orchestrator.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Transcriber  Transcriber
	VerifyToken  string
	Logger       *logrus.Logger
	// Budget bounds how long the POST handler waits for Process before
	// acknowledging success anyway (spec §5 "webhook handler has an
	// overall budget ... exceeding it returns a success acknowledgment").
	Budget time.Duration
}

const defaultBudget = 8 * time.Second

// Register mounts the inbound POST and the verification GET at path.
func Register(app fiber.Router, path string, h *Handler) {
	if h.Budget <= 0 {
		h.Budget = defaultBudget
	}
	app.Post(path, h.handleInbound)
	app.Get(path, h.handleVerify)
}

func (h *Handler) handleInbound(c *fiber.Ctx) error {
	var req inboundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	if req.Type == "audio" {
		text, ok := h.transcribe(c.Context(), req)
		if !ok {
			// No transcriber configured or decoding/transcription failed:
			// drop the audio message at admission (spec §9).
			return c.JSON(fiber.Map{"status": "success"})
		}
		req.Text = text
	}

	payload := orchestrator.InboundPayload{
		WaID:                   req.WaID,
		ID:                     req.ID,
		Type:                   req.Type,
		Text:                   req.Text,
		ButtonReply:            replyTag(req.ButtonReply),
		ListReply:              replyTag(req.ListReply),
		InteractiveButtonReply: replyTag(req.InteractiveButtonReply),
		FromMe:                 req.FromMe,
		Owner:                  req.Owner,
	}

	// The pipeline keeps running on a background context past the
	// handler's own budget so slow LLM/gateway calls don't get cancelled
	// just because the gateway stopped waiting for the ack.
	bg := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- h.Orchestrator.Process(bg, payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			h.Logger.WithError(err).WithField("wa_id", payload.WaID).Error("webhook: pipeline error")
		}
	case <-time.After(h.Budget):
		h.Logger.WithField("wa_id", payload.WaID).Warn("webhook: budget exceeded, acknowledging and continuing asynchronously")
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// transcribe converts req's voice-note bytes to text. ok is false when
// transcription is unavailable or the payload can't be decoded, in which
// case the caller drops the message instead of entering the pipeline.
func (h *Handler) transcribe(ctx context.Context, req inboundRequest) (text string, ok bool) {
	if h.Transcriber == nil || req.Audio == nil || req.Audio.Data == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(req.Audio.Data)
	if err != nil {
		h.Logger.WithError(err).WithField("wa_id", req.WaID).Warn("webhook: decode audio payload")
		return "", false
	}
	result, err := h.Transcriber.Transcribe(ctx, raw, req.Audio.MimeType)
	if err != nil {
		h.Logger.WithError(err).WithField("wa_id", req.WaID).Warn("webhook: transcribe audio")
		return "", false
	}
	if result == "" {
		return "", false
	}
	return result, true
}

// replyTag collapses a template-reply payload down to a non-empty marker
// string; InboundPayload only needs to know one was present, not its shape.
func replyTag(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	return "present"
}

// handleVerify answers the gateway's subscription handshake. The challenge
// comes back as a bare integer body, not JSON or a quoted string (spec §6.1).
func (h *Handler) handleVerify(c *fiber.Ctx) error {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.VerifyToken {
		challenge, err := strconv.Atoi(c.Query("hub.challenge"))
		if err != nil {
			return c.SendStatus(fiber.StatusForbidden)
		}
		return c.SendString(strconv.Itoa(challenge))
	}
	return c.SendStatus(fiber.StatusForbidden)
}
