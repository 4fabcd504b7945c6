package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abarwater/aqua-router/classifier"
	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/knowledge"
	"github.com/abarwater/aqua-router/domain/llm"
	"github.com/abarwater/aqua-router/domain/pause"
	"github.com/abarwater/aqua-router/resolver"
)

// fakeConversation is an in-memory conversation.Store good enough to drive
// the orchestrator's full pipeline without a database.
type fakeConversation struct {
	mu        sync.Mutex
	users     map[string]conversation.User
	nextUID   uint
	inbound   map[uint]conversation.InboundMessage
	byGateway map[string]uint
	nextIID   uint
	replies   map[uint]conversation.BotReply
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{
		users:     make(map[string]conversation.User),
		inbound:   make(map[uint]conversation.InboundMessage),
		byGateway: make(map[string]uint),
		replies:   make(map[uint]conversation.BotReply),
	}
}

func (f *fakeConversation) UpsertUser(ctx context.Context, phone string) (conversation.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok {
		return u, nil
	}
	f.nextUID++
	u := conversation.User{ID: f.nextUID, Phone: phone}
	f.users[phone] = u
	return u, nil
}

func (f *fakeConversation) RecordInbound(ctx context.Context, user conversation.User, text string, lang conversation.Language, gatewayID string) (conversation.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gatewayID != "" {
		if id, ok := f.byGateway[gatewayID]; ok {
			return f.inbound[id], nil
		}
	}
	f.nextIID++
	m := conversation.InboundMessage{ID: f.nextIID, UserID: user.ID, Text: text, Language: lang, GatewayID: gatewayID}
	f.inbound[m.ID] = m
	if gatewayID != "" {
		f.byGateway[gatewayID] = m.ID
	}
	return m, nil
}

func (f *fakeConversation) SetIntent(ctx context.Context, inboundID uint, intent conversation.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.inbound[inboundID]
	m.Intent = &intent
	f.inbound[inboundID] = m
	return nil
}

func (f *fakeConversation) RecordReply(ctx context.Context, inboundID uint, text string, lang conversation.Language) (conversation.BotReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.replies[inboundID]; ok {
		return conversation.BotReply{}, assertErr("reply already recorded")
	}
	r := conversation.BotReply{InboundMessageID: inboundID, Text: text, Language: lang}
	f.replies[inboundID] = r
	return r, nil
}

func (f *fakeConversation) RecentHistory(ctx context.Context, user conversation.User, n int) ([]conversation.HistoryTurn, error) {
	return nil, nil
}

func (f *fakeConversation) AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byGateway[gatewayID]
	return ok, nil
}

func (f *fakeConversation) PurgeUser(ctx context.Context, phone string) error { return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

// fakePause is an in-memory pause.Registry.
type fakePause struct {
	mu     sync.Mutex
	paused map[string]bool
}

func newFakePause() *fakePause { return &fakePause{paused: make(map[string]bool)} }

func (f *fakePause) IsPaused(ctx context.Context, conversationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused[conversationID], nil
}

func (f *fakePause) CreatePause(ctx context.Context, conversationID, phone, agent string, ttl time.Duration) (pause.Pause, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[conversationID] = true
	return pause.Pause{ConversationID: conversationID, Active: true}, nil
}

func (f *fakePause) Info(ctx context.Context, conversationID string) (pause.Info, bool, error) {
	return pause.Info{}, false, nil
}

// fakeSender records every outbound send attempt.
type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	phone []string
}

func (f *fakeSender) Send(ctx context.Context, phone, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.phone = append(f.phone, phone)
	return true
}

type fakeIndex struct {
	matches []knowledge.Match
}

func (f *fakeIndex) Add(ctx context.Context, entries []knowledge.Entry, checkDuplicates bool) (knowledge.AddResult, error) {
	return knowledge.AddResult{}, nil
}
func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]knowledge.Match, error) {
	return f.matches, nil
}
func (f *fakeIndex) DeleteByQuestionText(ctx context.Context, text string) (bool, error) {
	return false, nil
}
func (f *fakeIndex) Stats(ctx context.Context) (knowledge.Stats, error) { return knowledge.Stats{}, nil }

type fakeChat struct {
	text string
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return llm.ChatResponse{Text: f.text}, nil
}

func TestProcessDropsMessagesFromUnallowedPhones(t *testing.T) {
	conv := newFakeConversation()
	o := &Orchestrator{Conversation: conv, Pause: newFakePause(), AllowedPhones: []string{"966509999999"}}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "w1", Text: "مرحبا"})
	require.NoError(t, err)
	assert.Empty(t, conv.inbound)
}

func TestProcessDropsFromMeMessages(t *testing.T) {
	conv := newFakeConversation()
	o := &Orchestrator{Conversation: conv, Pause: newFakePause()}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", FromMe: true, Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, conv.inbound)
}

func TestProcessHonorsPause(t *testing.T) {
	conv := newFakeConversation()
	pauses := newFakePause()
	pauses.paused["966501234567"] = true
	o := &Orchestrator{Conversation: conv, Pause: pauses}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "w2", Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, conv.inbound)
}

func TestProcessSkipsAlreadyProcessedGatewayID(t *testing.T) {
	conv := newFakeConversation()
	o := &Orchestrator{Conversation: conv, Pause: newFakePause()}
	ctx := context.Background()

	require.NoError(t, o.Process(ctx, InboundPayload{WaID: "966501234567", ID: "dup", Text: "hi"}))
	require.Len(t, conv.inbound, 1)

	require.NoError(t, o.Process(ctx, InboundPayload{WaID: "966501234567", ID: "dup", Text: "hi again"}))
	assert.Len(t, conv.inbound, 1)
}

func TestProcessTemplateReplyShortCircuitsToIntentOnly(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	o := &Orchestrator{Conversation: conv, Pause: newFakePause(), Gateway: sender}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "btn1", ButtonReply: "yes"})
	require.NoError(t, err)
	require.Len(t, conv.inbound, 1)
	for _, m := range conv.inbound {
		require.NotNil(t, m.Intent)
		assert.Equal(t, conversation.IntentTemplateReply, *m.Intent)
	}
	assert.Empty(t, sender.sent)
}

func TestProcessResolverReplyShortCircuitsBeforeClassification(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	idx := &fakeIndex{matches: []knowledge.Match{{
		Question:   "what cities do you serve",
		Similarity: 0.9,
		Metadata:   knowledge.Metadata{AnswerText: "We serve Riyadh and Jeddah."},
	}}}
	o := &Orchestrator{
		Conversation: conv,
		Pause:        newFakePause(),
		Gateway:      sender,
		Resolver:     &resolver.Resolver{Index: idx},
	}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "r1", Text: "which cities do you serve"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "We serve Riyadh and Jeddah.", sender.sent[0])
}

func TestProcessClassifiesAndRoutesToCannedReply(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	o := &Orchestrator{
		Conversation: conv,
		Pause:        newFakePause(),
		Gateway:      sender,
		Classifier:   &classifier.Classifier{Chat: &fakeChat{text: "تحية"}},
	}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "g1", Text: "السلام عليكم"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "أهلاً")
}

func TestProcessUnknownIntentSendsNoReply(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	o := &Orchestrator{
		Conversation: conv,
		Pause:        newFakePause(),
		Gateway:      sender,
		Classifier:   &classifier.Classifier{Chat: &fakeChat{text: "not a real label"}},
	}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "u1", Text: "random text"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestProcessCatalogAgentNilSkipsInquiryIntent(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	o := &Orchestrator{
		Conversation: conv,
		Pause:        newFakePause(),
		Gateway:      sender,
		Classifier:   &classifier.Classifier{Chat: &fakeChat{text: "استفسار"}},
	}

	err := o.Process(context.Background(), InboundPayload{WaID: "966501234567", ID: "i1", Text: "كم سعر المويه"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestProcessReleasesLockBeforeSend(t *testing.T) {
	conv := newFakeConversation()
	sender := &fakeSender{}
	o := &Orchestrator{
		Conversation: conv,
		Pause:        newFakePause(),
		Gateway:      sender,
		Classifier:   &classifier.Classifier{Chat: &fakeChat{text: "تحية"}},
	}
	ctx := context.Background()

	require.NoError(t, o.Process(ctx, InboundPayload{WaID: "966501234567", ID: "lk1", Text: "السلام عليكم"}))

	// if the lock leaked held, a second Process call for the same phone
	// would deadlock; completing within the test timeout proves release.
	require.NoError(t, o.Process(ctx, InboundPayload{WaID: "966501234567", ID: "lk2", Text: "السلام عليكم"}))
	assert.Len(t, sender.sent, 2)
}
