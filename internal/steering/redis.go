package steering

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis implements Queue over a Redis list, using the same client as
// internal/jobstore (spec.md §6: "a single key-value store, one connection
// pool").
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-constructed client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func key(sessionID string) string { return "steer:" + sessionID }

func (r *Redis) Push(ctx context.Context, sessionID, text, sender string, isAbort bool) error {
	msg := Message{Text: text, Sender: sender, Timestamp: now(), IsAbort: resolveAbort(text, isAbort)}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal steering message: %w", err)
	}
	if err := r.rdb.RPush(ctx, key(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("rpush steering message: %w", err)
	}
	return nil
}

func (r *Redis) PopOne(ctx context.Context, sessionID string) (Message, bool, error) {
	raw, err := r.rdb.LPop(ctx, key(sessionID)).Result()
	if err == redis.Nil {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("lpop steering message: %w", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false, fmt.Errorf("unmarshal steering message: %w", err)
	}
	return msg, true, nil
}

func (r *Redis) PopAll(ctx context.Context, sessionID string) ([]Message, error) {
	k := key(sessionID)
	// LLEN, then LPOP with that count, as two separate round trips: a
	// message pushed between the two calls stays queued for the next drain.
	length, err := r.rdb.LLen(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("llen steering queue: %w", err)
	}
	if length == 0 {
		return nil, nil
	}
	raws, err := r.rdb.LPopCount(ctx, k, int(length)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("lpop steering queue: %w", err)
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *Redis) Clear(ctx context.Context, sessionID string) (int, error) {
	k := key(sessionID)
	n, err := r.rdb.LLen(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("llen steering queue: %w", err)
	}
	if err := r.rdb.Del(ctx, k).Err(); err != nil {
		return 0, fmt.Errorf("del steering queue: %w", err)
	}
	return int(n), nil
}

func (r *Redis) HasMessages(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.rdb.LLen(ctx, key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("llen steering queue: %w", err)
	}
	return n > 0, nil
}
