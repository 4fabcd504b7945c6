// Package pauseregistry implements domain/pause.Registry on valkey-go,
// grounded on the teacher's infrastructure/valkey/client.go prefixed-key
// wrapper. Pauses are stored as TTL-backed hashes so that ExpiresAt can be
// read back without trusting the key's own TTL clock, which lets IsPaused
// perform the lazy sweep spec §4.2 calls for as an explicit side effect
// rather than relying solely on valkey's own expiry.
package pauseregistry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/abarwater/aqua-router/domain/pause"
)

const keyPrefix = "abar:pause:"

// Registry implements pause.Registry backed by a valkey-go client.
type Registry struct {
	client valkeylib.Client
}

func New(client valkeylib.Client) *Registry {
	return &Registry{client: client}
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}

func (r *Registry) IsPaused(ctx context.Context, conversationID string) (bool, error) {
	p, ok, err := r.read(ctx, conversationID)
	if err != nil || !ok {
		return false, err
	}
	if !p.Active {
		return false, nil
	}
	if time.Now().Before(p.ExpiresAt) {
		return true, nil
	}
	// lazy sweep: mark the expired pause inactive as a side effect
	p.Active = false
	if err := r.write(ctx, p); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Registry) CreatePause(ctx context.Context, conversationID, phone, agent string, ttl time.Duration) (pause.Pause, error) {
	now := timeNow()
	p := pause.Pause{
		ConversationID: conversationID,
		Phone:          phone,
		Agent:          agent,
		PausedAt:       now,
		ExpiresAt:      now.Add(ttl),
		Active:         true,
	}
	if err := r.write(ctx, p); err != nil {
		return pause.Pause{}, err
	}
	return p, nil
}

func (r *Registry) Info(ctx context.Context, conversationID string) (pause.Info, bool, error) {
	p, ok, err := r.read(ctx, conversationID)
	if err != nil || !ok {
		return pause.Info{}, ok, err
	}
	return pause.Info{
		Pause:   p,
		InForce: p.Active && timeNow().Before(p.ExpiresAt),
	}, true, nil
}

func (r *Registry) read(ctx context.Context, conversationID string) (pause.Pause, bool, error) {
	cmd := r.client.B().Hgetall().Key(key(conversationID)).Build()
	fields, err := r.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return pause.Pause{}, false, nil
		}
		return pause.Pause{}, false, fmt.Errorf("pauseregistry: read: %w", err)
	}
	if len(fields) == 0 {
		return pause.Pause{}, false, nil
	}

	pausedAt, _ := strconv.ParseInt(fields["paused_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	active, _ := strconv.ParseBool(fields["active"])

	return pause.Pause{
		ConversationID: conversationID,
		Phone:          fields["phone"],
		Agent:          fields["agent"],
		PausedAt:       time.Unix(pausedAt, 0),
		ExpiresAt:      time.Unix(expiresAt, 0),
		Active:         active,
	}, true, nil
}

func (r *Registry) write(ctx context.Context, p pause.Pause) error {
	k := key(p.ConversationID)
	cmd := r.client.B().Hset().Key(k).FieldValue().
		FieldValue("phone", p.Phone).
		FieldValue("agent", p.Agent).
		FieldValue("paused_at", strconv.FormatInt(p.PausedAt.Unix(), 10)).
		FieldValue("expires_at", strconv.FormatInt(p.ExpiresAt.Unix(), 10)).
		FieldValue("active", strconv.FormatBool(p.Active)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("pauseregistry: write: %w", err)
	}

	// a generous hash TTL well past ExpiresAt bounds memory use without
	// racing the application-level lazy sweep above.
	ttl := time.Until(p.ExpiresAt) + 24*time.Hour
	expireCmd := r.client.B().Expire().Key(k).Seconds(int64(ttl.Seconds())).Build()
	return r.client.Do(ctx, expireCmd).Error()
}

// timeNow wraps time.Now for CreatePause and Info; IsPaused calls
// time.Now directly.
func timeNow() time.Time { return time.Now() }
