// Package idempotency guards message consumers against redelivery.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/watchpoints/points-engine/pkg/redis"
)

// Manager tracks processed message IDs per consumer using SETNX with a TTL.
// Keys look like `<ns>:idempotency:evt:processed:<consumer>:<message_id>`.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether messageID was already handled by
// consumer, marking it handled when it was not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, messageID string) (bool, error) {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete forgets a mark so a failed handler can be retried on redelivery.
func (m *Manager) Delete(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer, messageID string) (string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(messageID) == "" {
		return "", errors.New("message id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, messageID), nil
}
