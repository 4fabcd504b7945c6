// Package pause defines the C6 Pause Registry contract: a time-bounded
// suppression of bot replies for one conversation, created when a human
// agent intervenes.
package pause

import (
	"context"
	"time"
)

// Pause is keyed by an opaque conversation id (1:1 with a User in practice).
type Pause struct {
	ConversationID string
	Phone          string
	Agent          string
	PausedAt       time.Time
	ExpiresAt      time.Time
	Active         bool
}

// Info is the diagnostic view of a conversation's pause state.
type Info struct {
	Pause
	InForce bool
}

// Registry is the C6 contract. InForce iff Active && now < ExpiresAt.
// Expired pauses are swept lazily: any read that observes an expired
// active pause must mark it inactive as a side effect.
type Registry interface {
	// IsPaused returns true iff an active, non-expired pause exists for
	// conversationID. Every inbound message MUST consult this before any
	// other work (spec §4.2).
	IsPaused(ctx context.Context, conversationID string) (bool, error)

	// CreatePause supersedes any prior active pause for conversationID.
	CreatePause(ctx context.Context, conversationID, phone, agent string, ttl time.Duration) (Pause, error)

	// Info returns the current pause state for diagnostics, or ok=false
	// if none exists.
	Info(ctx context.Context, conversationID string) (Info, bool, error)
}
