// Package orchestrator implements C10: the seven-step pipeline that turns
// one inbound gateway payload into zero or one outbound replies, grounded
// on the teacher's bot.go dispatch loop (admission checks before any
// persistence, one lock held across the synchronous stages, released
// before the network send) and on spec §4.8/§5.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/abarwater/aqua-router/catalogagent"
	"github.com/abarwater/aqua-router/classifier"
	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/pause"
	"github.com/abarwater/aqua-router/langutil"
	"github.com/abarwater/aqua-router/pkg/phone"
	"github.com/abarwater/aqua-router/resolver"
)

// InboundPayload is the normalized shape of one gateway webhook event
// (spec §6.1). Text already holds a transcription when Type is "audio".
type InboundPayload struct {
	WaID                   string
	ID                     string
	Type                   string
	Text                   string
	ButtonReply            string
	ListReply              string
	InteractiveButtonReply string
	FromMe                 bool
	Owner                  bool
}

// isTemplateReply reports whether the payload is a template/button/list
// tap rather than free text (spec §4.8 step 3).
func (p InboundPayload) isTemplateReply() bool {
	return p.ButtonReply != "" || p.ListReply != "" || p.InteractiveButtonReply != "" || p.Type == "button"
}

// Sender is the outbound leg (C1), kept as a narrow interface here so the
// orchestrator's lock-release-before-send discipline (spec §5) does not
// depend on infra/gateway directly.
type Sender interface {
	Send(ctx context.Context, phone, text string) bool
}

// Orchestrator wires the pipeline stages together. Every dependency is a
// narrow interface or a leaf type so tests can substitute in-memory fakes
// for everything except the pure logic.
type Orchestrator struct {
	Conversation conversation.Store
	Pause        pause.Registry
	Gateway      Sender
	Resolver     *resolver.Resolver
	Classifier   *classifier.Classifier
	CatalogAgent *catalogagent.Agent

	AllowedPhones       []string
	PauseConversationID func(phone string) string

	locks userLocks
}

// userLocks serializes the synchronous stages (2-6) per phone, mirroring
// the shape of repository/conversation's phoneLocks but scoped to the
// orchestrator's own critical section rather than storage writes.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (u *userLocks) get(phone string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.m == nil {
		u.m = make(map[string]*sync.Mutex)
	}
	l, ok := u.m[phone]
	if !ok {
		l = &sync.Mutex{}
		u.m[phone] = l
	}
	return l
}

// Process implements the seven steps of spec §4.8 for one inbound payload.
// A nil return means "handled" (including a deliberate no-reply); the
// gateway send, if any, has already been attempted by the time Process
// returns.
func (o *Orchestrator) Process(ctx context.Context, p InboundPayload) error {
	userPhone := phone.Normalize(p.WaID)

	// Step 1: admission. Allow-list, pause and fromMe/owner checks never
	// touch a user lock or persistence (spec §4.8 step 1).
	if !phone.IsAllowed(userPhone, o.AllowedPhones) {
		return nil
	}
	if p.FromMe || p.Owner {
		return nil
	}

	convID := userPhone
	if o.PauseConversationID != nil {
		convID = o.PauseConversationID(userPhone)
	}
	paused, err := o.Pause.IsPaused(ctx, convID)
	if err != nil {
		return fmt.Errorf("orchestrator: check pause: %w", err)
	}
	if paused {
		return nil
	}

	if p.ID != "" {
		already, err := o.Conversation.AlreadyProcessed(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("orchestrator: check already processed: %w", err)
		}
		if already {
			return nil
		}
	}

	lock := o.locks.get(userPhone)
	lock.Lock()
	locked := true
	unlock := func() {
		if locked {
			lock.Unlock()
			locked = false
		}
	}
	defer unlock()

	// Step 2: persist.
	user, err := o.Conversation.UpsertUser(ctx, userPhone)
	if err != nil {
		return fmt.Errorf("orchestrator: upsert user: %w", err)
	}

	lang := langutil.Detect(p.Text)
	inbound, err := o.Conversation.RecordInbound(ctx, user, p.Text, lang, p.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: record inbound: %w", err)
	}

	// Step 3: template short-circuit.
	if p.isTemplateReply() {
		return o.Conversation.SetIntent(ctx, inbound.ID, conversation.IntentTemplateReply)
	}

	history, err := o.Conversation.RecentHistory(ctx, user, conversation.DefaultHistorySize)
	if err != nil {
		return fmt.Errorf("orchestrator: recent history: %w", err)
	}

	var reply string
	var replyLang conversation.Language = lang

	// Step 4: resolve.
	if o.Resolver != nil {
		res, err := o.Resolver.Resolve(ctx, p.Text, history)
		if err != nil {
			return fmt.Errorf("orchestrator: resolve: %w", err)
		}
		switch res.Action {
		case resolver.ActionReply:
			reply = res.Response
			return o.send(ctx, unlock, userPhone, inbound.ID, reply, replyLang)
		case resolver.ActionSkip:
			return nil
		}
		// ActionContinue falls through to classification.
	}

	// Step 5: classify.
	var intent *conversation.Intent
	if o.Classifier != nil {
		result, err := o.Classifier.Classify(ctx, inbound.ID, p.Text, history)
		if err != nil {
			return fmt.Errorf("orchestrator: classify: %w", err)
		}
		intent = result.Intent
		if intent != nil {
			if err := o.Conversation.SetIntent(ctx, inbound.ID, *intent); err != nil {
				return fmt.Errorf("orchestrator: set intent: %w", err)
			}
		}
	}

	// Step 6: route by intent.
	if intent == nil {
		return nil
	}
	switch *intent {
	case conversation.IntentGreeting, conversation.IntentThanking,
		conversation.IntentComplaint, conversation.IntentSuggestion:
		text, ok := cannedReply(lang, *intent)
		if !ok {
			return nil
		}
		reply = text
	case conversation.IntentInquiry, conversation.IntentServiceRequest:
		if o.CatalogAgent == nil {
			return nil
		}
		text, err := o.CatalogAgent.Run(ctx, p.Text, lang, history)
		if err != nil {
			return fmt.Errorf("orchestrator: catalog agent: %w", err)
		}
		reply = text
	default:
		return nil
	}

	if reply == "" {
		return nil
	}

	// Step 7: send. The lock is released as soon as the reply is
	// persisted, before the outbound HTTP call, per spec §5.
	return o.send(ctx, unlock, userPhone, inbound.ID, reply, replyLang)
}

func (o *Orchestrator) send(ctx context.Context, unlock func(), userPhone string, inboundID uint, reply string, lang conversation.Language) error {
	if _, err := o.Conversation.RecordReply(ctx, inboundID, reply, lang); err != nil {
		return fmt.Errorf("orchestrator: record reply: %w", err)
	}
	unlock()

	if o.Gateway != nil {
		o.Gateway.Send(ctx, userPhone, reply)
	}
	return nil
}
