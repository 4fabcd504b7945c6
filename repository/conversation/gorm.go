// Package conversation implements domain/conversation.Store on top of
// GORM, following the teacher's botModel/toModel/fromModel split
// (botengine/repository/bot_gorm.go) so the domain package stays free of
// ORM tags.
package conversation

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/pkg/apierr"
)

type userModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Phone      string `gorm:"column:phone;uniqueIndex;not null"`
	Name       string `gorm:"column:name"`
	Conclusion string `gorm:"column:conclusion"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (userModel) TableName() string { return "users" }

type inboundMessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    uint      `gorm:"column:user_id;not null;index"`
	Text      string    `gorm:"column:text"`
	Language  string    `gorm:"column:language"`
	Intent    string    `gorm:"column:intent"`
	GatewayID string    `gorm:"column:gateway_id;uniqueIndex:idx_gateway_id,where:gateway_id <> ''"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (inboundMessageModel) TableName() string { return "inbound_messages" }

type botReplyModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	InboundMessageID uint      `gorm:"column:inbound_message_id;uniqueIndex;not null"`
	Text             string    `gorm:"column:text"`
	Language         string    `gorm:"column:language"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (botReplyModel) TableName() string { return "bot_replies" }

type complaintModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	InboundMessageID uint   `gorm:"column:inbound_message_id;not null;index"`
	Text             string `gorm:"column:text"`
}

func (complaintModel) TableName() string { return "complaints" }

type suggestionModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	InboundMessageID uint   `gorm:"column:inbound_message_id;not null;index"`
	Text             string `gorm:"column:text"`
}

func (suggestionModel) TableName() string { return "suggestions" }

// Store implements conversation.Store and conversation.FeedbackStore. Writes
// are serialized per user via a sharded set of mutexes keyed on phone,
// mirroring the teacher's pkg/msgworker per-user ordering guarantee without
// pulling in a worker-pool dependency for what is here a simple lock.
type Store struct {
	db    *gorm.DB
	locks *phoneLocks
}

// New constructs a Store and runs AutoMigrate for its tables.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&userModel{},
		&inboundMessageModel{},
		&botReplyModel{},
		&complaintModel{},
		&suggestionModel{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db, locks: newPhoneLocks()}, nil
}

func (s *Store) UpsertUser(ctx context.Context, phone string) (conversation.User, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()

	var m userModel
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&m).Error
	if err == nil {
		return fromUserModel(m), nil
	}
	if err != gorm.ErrRecordNotFound {
		return conversation.User{}, err
	}

	m = userModel{Phone: phone}
	if err := s.db.WithContext(ctx).Clauses(onConflictDoNothing("phone")).Create(&m).Error; err != nil {
		return conversation.User{}, err
	}
	if m.ID == 0 {
		// another writer won the race; re-read
		if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&m).Error; err != nil {
			return conversation.User{}, err
		}
	}
	return fromUserModel(m), nil
}

func (s *Store) RecordInbound(ctx context.Context, user conversation.User, text string, language conversation.Language, gatewayID string) (conversation.InboundMessage, error) {
	unlock := s.locks.Lock(user.Phone)
	defer unlock()

	if gatewayID != "" {
		var existing inboundMessageModel
		err := s.db.WithContext(ctx).Where("gateway_id = ?", gatewayID).First(&existing).Error
		if err == nil {
			return fromInboundModel(existing), nil
		}
		if err != gorm.ErrRecordNotFound {
			return conversation.InboundMessage{}, err
		}
	}

	m := inboundMessageModel{
		UserID:    user.ID,
		Text:      text,
		Language:  string(language),
		GatewayID: gatewayID,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return conversation.InboundMessage{}, err
	}
	return fromInboundModel(m), nil
}

func (s *Store) SetIntent(ctx context.Context, inboundID uint, intent conversation.Intent) error {
	return s.db.WithContext(ctx).Model(&inboundMessageModel{}).
		Where("id = ?", inboundID).
		Update("intent", string(intent)).Error
}

func (s *Store) RecordReply(ctx context.Context, inboundID uint, text string, language conversation.Language) (conversation.BotReply, error) {
	var existing botReplyModel
	err := s.db.WithContext(ctx).Where("inbound_message_id = ?", inboundID).First(&existing).Error
	if err == nil {
		return conversation.BotReply{}, apierr.ConflictError("bot reply already recorded for this inbound message")
	}
	if err != gorm.ErrRecordNotFound {
		return conversation.BotReply{}, err
	}

	m := botReplyModel{
		InboundMessageID: inboundID,
		Text:             text,
		Language:         string(language),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return conversation.BotReply{}, err
	}
	return fromReplyModel(m), nil
}

func (s *Store) RecentHistory(ctx context.Context, user conversation.User, n int) ([]conversation.HistoryTurn, error) {
	if n <= 0 {
		n = conversation.DefaultHistorySize
	}

	var inbounds []inboundMessageModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(n).
		Find(&inbounds).Error; err != nil {
		return nil, err
	}

	// reverse to oldest-first before pairing each inbound with its reply
	for i, j := 0, len(inbounds)-1; i < j; i, j = i+1, j-1 {
		inbounds[i], inbounds[j] = inbounds[j], inbounds[i]
	}

	turns := make([]conversation.HistoryTurn, 0, len(inbounds)*2)
	for _, in := range inbounds {
		turns = append(turns, conversation.HistoryTurn{
			Role:      "user",
			Content:   in.Text,
			Language:  conversation.Language(in.Language),
			Timestamp: in.CreatedAt,
		})
		var reply botReplyModel
		if err := s.db.WithContext(ctx).Where("inbound_message_id = ?", in.ID).First(&reply).Error; err == nil {
			turns = append(turns, conversation.HistoryTurn{
				Role:      "bot",
				Content:   reply.Text,
				Language:  conversation.Language(reply.Language),
				Timestamp: reply.CreatedAt,
			})
		}
	}

	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func (s *Store) AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error) {
	if gatewayID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&inboundMessageModel{}).
		Where("gateway_id = ?", gatewayID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) PurgeUser(ctx context.Context, phone string) error {
	unlock := s.locks.Lock(phone)
	defer unlock()

	var user userModel
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inboundIDs []uint
		if err := tx.Model(&inboundMessageModel{}).Where("user_id = ?", user.ID).Pluck("id", &inboundIDs).Error; err != nil {
			return err
		}
		if len(inboundIDs) > 0 {
			if err := tx.Where("inbound_message_id IN ?", inboundIDs).Delete(&botReplyModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("inbound_message_id IN ?", inboundIDs).Delete(&complaintModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("inbound_message_id IN ?", inboundIDs).Delete(&suggestionModel{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("user_id = ?", user.ID).Delete(&inboundMessageModel{}).Error
	})
}

func (s *Store) RecordComplaint(ctx context.Context, inboundID uint, text string) (conversation.ComplaintRecord, error) {
	m := complaintModel{InboundMessageID: inboundID, Text: text}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return conversation.ComplaintRecord{}, err
	}
	return conversation.ComplaintRecord{ID: m.ID, InboundMessageID: m.InboundMessageID, Text: m.Text}, nil
}

func (s *Store) RecordSuggestion(ctx context.Context, inboundID uint, text string) (conversation.SuggestionRecord, error) {
	m := suggestionModel{InboundMessageID: inboundID, Text: text}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return conversation.SuggestionRecord{}, err
	}
	return conversation.SuggestionRecord{ID: m.ID, InboundMessageID: m.InboundMessageID, Text: m.Text}, nil
}

func fromUserModel(m userModel) conversation.User {
	return conversation.User{
		ID:         m.ID,
		Phone:      m.Phone,
		Name:       m.Name,
		Conclusion: m.Conclusion,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func fromInboundModel(m inboundMessageModel) conversation.InboundMessage {
	out := conversation.InboundMessage{
		ID:        m.ID,
		UserID:    m.UserID,
		Text:      m.Text,
		Language:  conversation.Language(m.Language),
		GatewayID: m.GatewayID,
		CreatedAt: m.CreatedAt,
	}
	if m.Intent != "" {
		intent := conversation.Intent(m.Intent)
		out.Intent = &intent
	}
	return out
}

func fromReplyModel(m botReplyModel) conversation.BotReply {
	return conversation.BotReply{
		ID:               m.ID,
		InboundMessageID: m.InboundMessageID,
		Text:             m.Text,
		Language:         conversation.Language(m.Language),
		CreatedAt:        m.CreatedAt,
	}
}

// phoneLocks is a sharded set of per-phone mutexes, avoiding one global
// lock for the whole store (spec §4.1 "writes are serialized per user").
type phoneLocks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func newPhoneLocks() *phoneLocks {
	return &phoneLocks{byKey: make(map[string]*sync.Mutex)}
}

func (p *phoneLocks) Lock(phone string) func() {
	p.mu.Lock()
	l, ok := p.byKey[phone]
	if !ok {
		l = &sync.Mutex{}
		p.byKey[phone] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
