// Package conversation holds the core entities and repository contract for
// users, inbound messages and bot replies (C3). Types here carry no ORM
// tags — the gorm mapping lives in repository/conversation, following the
// teacher's domain/bot split between plain structs and their persistence.
package conversation

import "time"

// Intent is the closed set of labels the classifier (C7) assigns.
type Intent string

const (
	IntentServiceRequest Intent = "service_request"
	IntentInquiry        Intent = "inquiry"
	IntentComplaint      Intent = "complaint"
	IntentSuggestion     Intent = "suggestion"
	IntentGreeting       Intent = "greeting"
	IntentThanking       Intent = "thanking"
	IntentTemplateReply  Intent = "template_reply"
	IntentOther          Intent = "other"
)

// Language is the two-way detection result from C5.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// User is identified by a normalized, digits-only phone number.
type User struct {
	ID         uint
	Phone      string
	Name       string
	Conclusion string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InboundMessage belongs to one User. GatewayID is the dedup key: at most
// one InboundMessage exists per non-empty GatewayID (spec §3, §8 property 1).
type InboundMessage struct {
	ID        uint
	UserID    uint
	Text      string
	Language  Language
	Intent    *Intent
	GatewayID string
	CreatedAt time.Time
}

// BotReply belongs to exactly one InboundMessage; a second reply for the
// same inbound is a logic error (enforced by the store, see Store.RecordReply).
type BotReply struct {
	ID               uint
	InboundMessageID uint
	Text             string
	Language         Language
	CreatedAt        time.Time
}

// HistoryTurn is one entry of recent_history — an inbound message or its
// reply, tagged by role, oldest first.
type HistoryTurn struct {
	Role      string // "user" or "bot"
	Content   string
	Language  Language
	Timestamp time.Time
}

// DefaultHistorySize is the n used by classification, resolution and the
// catalog agent loop per spec §4.1.
const DefaultHistorySize = 5
