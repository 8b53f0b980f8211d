package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/logger"
)

const (
	keyPrefix = "askdex:conv:"

	// DefaultTTL is how long an idle conversation is kept.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxStored caps turns kept per conversation.
	DefaultMaxStored = 100
)

// store is the consumer interface for conversation history (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Repo keeps conversation turns in a Redis list per conversation.
type Repo struct {
	store     store
	ttl       time.Duration
	maxStored int
}

// New creates a history repository. Zero ttl or maxStored take defaults.
func New(s store, ttl time.Duration, maxStored int) *Repo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxStored <= 0 {
		maxStored = DefaultMaxStored
	}
	return &Repo{store: s, ttl: ttl, maxStored: maxStored}
}

// Load returns the last limit turns, oldest first. limit <= 0 loads everything kept.
func (r *Repo) Load(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	raw, err := r.store.LRange(ctx, keyPrefix+conversationID, start, -1)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", conversationID, err)
	}

	turns := make([]conversation.Turn, 0, len(raw))
	for _, b := range raw {
		var t conversation.Turn
		if err := json.Unmarshal(b, &t); err != nil {
			logger.FromContext(ctx).Warn("Skipping corrupt history entry",
				zap.String("conversation_id", conversationID), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append adds turns to the conversation, trims it and refreshes its TTL.
func (r *Repo) Append(ctx context.Context, conversationID string, turns ...conversation.Turn) error {
	if conversationID == "" {
		return errors.New("conversation id is required")
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([][]byte, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, b)
	}

	key := keyPrefix + conversationID
	n, err := r.store.RPush(ctx, key, values...)
	if err != nil {
		return fmt.Errorf("append history %s: %w", conversationID, err)
	}
	if n > int64(r.maxStored) {
		if err := r.store.LTrim(ctx, key, -int64(r.maxStored), -1); err != nil {
			return fmt.Errorf("trim history %s: %w", conversationID, err)
		}
	}
	if err := r.store.Expire(ctx, key, r.ttl); err != nil {
		return fmt.Errorf("expire history %s: %w", conversationID, err)
	}
	return nil
}
