package conversation

import "context"

// Store is the C3 Conversation Store contract. Writes are serialized per
// user (row lock or advisory per-user mutex, see repository/conversation);
// reads tolerate stale data.
type Store interface {
	// UpsertUser is idempotent by phone.
	UpsertUser(ctx context.Context, phone string) (User, error)

	// RecordInbound is a no-op returning the existing row when gatewayID is
	// non-empty and already stored (spec §3 InboundMessage invariant).
	RecordInbound(ctx context.Context, user User, text string, language Language, gatewayID string) (InboundMessage, error)

	// SetIntent tags an already-persisted inbound message with its
	// classified intent. InboundMessage is otherwise immutable after creation.
	SetIntent(ctx context.Context, inboundID uint, intent Intent) error

	// RecordReply rejects a second call for the same inboundID.
	RecordReply(ctx context.Context, inboundID uint, text string, language Language) (BotReply, error)

	// RecentHistory returns the last n inbound/reply events for user,
	// oldest first.
	RecentHistory(ctx context.Context, user User, n int) ([]HistoryTurn, error)

	// AlreadyProcessed reports whether an InboundMessage with this
	// gatewayID has already been recorded.
	AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error)

	// PurgeUser removes every inbound message and bot reply for phone
	// (maintenance helper, spec §4.1 "Deletion helpers").
	PurgeUser(ctx context.Context, phone string) error
}

// ComplaintRecord and SuggestionRecord back the side effects the classifier
// must create when it tags an inbound message complaint/suggestion
// (spec §4.4).
type ComplaintRecord struct {
	ID               uint
	InboundMessageID uint
	Text             string
}

type SuggestionRecord struct {
	ID               uint
	InboundMessageID uint
	Text             string
}

// FeedbackStore persists the complaint/suggestion side records. Kept
// separate from Store because it is only ever written by the classifier,
// never read by the orchestrator's main path.
type FeedbackStore interface {
	RecordComplaint(ctx context.Context, inboundID uint, text string) (ComplaintRecord, error)
	RecordSuggestion(ctx context.Context, inboundID uint, text string) (SuggestionRecord, error)
}
