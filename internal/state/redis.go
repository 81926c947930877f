package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the state keys.
const DefaultRedisPrefix = "todobot:state:"

// Redis stores conversation state as JSON documents, one key per chat.
// Each save refreshes the key's TTL so idle chats eventually expire.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl keeps keys forever.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client, DefaultRedisPrefix, ttl), nil
}

func (r *Redis) key(chatID int64) string {
	return r.prefix + strconv.FormatInt(chatID, 10)
}

// Load returns the stored state, or an idle state when the key is missing
// or expired.
func (r *Redis) Load(ctx context.Context, chatID int64) (ConversationState, error) {
	data, err := r.client.Get(ctx, r.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ConversationState{Dialog: Idle}, nil
	}
	if err != nil {
		return ConversationState{}, fmt.Errorf("state get: %w", err)
	}

	var st ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return ConversationState{}, fmt.Errorf("state unmarshal: %w", err)
	}
	if st.Dialog == "" {
		st.Dialog = Idle
	}
	return st, nil
}

// Save writes st and refreshes the TTL.
func (r *Redis) Save(ctx context.Context, chatID int64, st ConversationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(chatID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("state set: %w", err)
	}
	return nil
}

// Delete removes the chat's key.
func (r *Redis) Delete(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, r.key(chatID)).Err(); err != nil {
		return fmt.Errorf("state delete: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
