// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/connectors"
)

// DefaultTTL bounds how long an unclaimed call context survives. A gateway
// that announces a call and never follows through must not leak entries.
const DefaultTTL = 10 * time.Minute

// ErrNotFound is returned for expired or never-stored call contexts.
var ErrNotFound = errors.New("call context not found")

// CallContext is the per-call state shared between the routing decision and
// the media path. Keyed by call_id.
type CallContext struct {
	CallID       string                    `json:"callId"`
	GatewayID    string                    `json:"gatewayId"`
	CallerNumber string                    `json:"callerNumber"`
	Decision     internal_routing.Decision `json:"decision"`
	SessionID    string                    `json:"sessionId,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

// Store keeps call contexts for the duration of a call, evicting them by
// TTL so abandoned announcements cannot accumulate.
type Store interface {
	Put(ctx context.Context, cc *CallContext) error
	Get(ctx context.Context, callID string) (*CallContext, error)
	Delete(ctx context.Context, callID string) error
}

// ============================================================================
// Redis-backed store
// ============================================================================

type redisStore struct {
	redis  connectors.RedisConnector
	logger commons.Logger
	ttl    time.Duration
}

// NewRedisStore creates a call context store backed by Redis. Use this when
// more than one bridge process fronts the same gateway fleet.
func NewRedisStore(redis connectors.RedisConnector, logger commons.Logger, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{redis: redis, logger: logger, ttl: ttl}
}

func redisKey(callID string) string {
	return "bridge:callctx:" + callID
}

func (s *redisStore) Put(ctx context.Context, cc *CallContext) error {
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("failed to encode call context %s: %w", cc.CallID, err)
	}
	if err := s.redis.Client().Set(ctx, redisKey(cc.CallID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store call context %s: %w", cc.CallID, err)
	}
	s.logger.Debugf("stored call context: call_id=%s ttl=%s", cc.CallID, s.ttl)
	return nil
}

func (s *redisStore) Get(ctx context.Context, callID string) (*CallContext, error) {
	payload, err := s.redis.Client().Get(ctx, redisKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load call context %s: %w", callID, err)
	}
	var cc CallContext
	if err := json.Unmarshal(payload, &cc); err != nil {
		return nil, fmt.Errorf("failed to decode call context %s: %w", callID, err)
	}
	return &cc, nil
}

func (s *redisStore) Delete(ctx context.Context, callID string) error {
	if err := s.redis.Client().Del(ctx, redisKey(callID)).Err(); err != nil {
		return fmt.Errorf("failed to delete call context %s: %w", callID, err)
	}
	return nil
}

// ============================================================================
// In-memory store
// ============================================================================

type memoryEntry struct {
	cc      *CallContext
	expires time.Time
}

type memoryStore struct {
	logger commons.Logger
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates a single-process call context store. Expired
// entries are dropped lazily on access and swept on writes.
func NewMemoryStore(logger commons.Logger, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryStore{
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *memoryStore) Put(_ context.Context, cc *CallContext) error {
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	// Stored value is detached from the caller's pointer, matching the
	// serialize-on-write semantics of the redis store.
	stored := *cc
	s.entries[cc.CallID] = memoryEntry{cc: &stored, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, callID string) (*CallContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[callID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(entry.expires) {
		delete(s.entries, callID)
		return nil, ErrNotFound
	}
	cc := *entry.cc
	return &cc, nil
}

func (s *memoryStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, callID)
	return nil
}

func (s *memoryStore) sweepLocked() {
	now := s.now()
	for id, entry := range s.entries {
		if now.After(entry.expires) {
			delete(s.entries, id)
		}
	}
}
