// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_contextstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/connectors"
)

func sampleContext() *CallContext {
	return &CallContext{
		CallID:       "call-1",
		GatewayID:    "gw-1",
		CallerNumber: "+15551230000",
		Decision: internal_routing.Decision{
			Action: internal_routing.ActionAnswer,
			CallID: "call-1",
		},
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	store := NewMemoryStore(commons.NewNopLogger(), time.Minute)

	cc := sampleContext()
	require.NoError(t, store.Put(context.Background(), cc))

	got, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", got.GatewayID)
	assert.Equal(t, internal_routing.ActionAnswer, got.Decision.Action)

	require.NoError(t, store.Delete(context.Background(), "call-1"))
	_, err = store.Get(context.Background(), "call-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsDetachedCopy(t *testing.T) {
	store := NewMemoryStore(commons.NewNopLogger(), time.Minute)

	original := sampleContext()
	require.NoError(t, store.Put(context.Background(), original))

	// Neither the caller's Put pointer nor a Get result may alias stored
	// state, matching the redis store's serialize boundary.
	original.SessionID = "mutated-after-put"

	first, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Empty(t, first.SessionID)

	first.GatewayID = "mutated-after-get"
	second, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", second.GatewayID)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore(commons.NewNopLogger(), time.Minute)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	store := NewMemoryStore(commons.NewNopLogger(), time.Minute).(*memoryStore)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(context.Background(), sampleContext()))

	now = now.Add(30 * time.Second)
	_, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = store.Get(context.Background(), "call-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_WriteSweepsExpired(t *testing.T) {
	store := NewMemoryStore(commons.NewNopLogger(), time.Minute).(*memoryStore)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale := sampleContext()
	require.NoError(t, store.Put(context.Background(), stale))

	now = now.Add(2 * time.Minute)
	fresh := sampleContext()
	fresh.CallID = "call-2"
	require.NoError(t, store.Put(context.Background(), fresh))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.entries, 1, "expired entries are swept on write")
}

func TestRedisStore_PutGetDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(connectors.NewRedisConnectorFromClient(client, commons.NewNopLogger()), commons.NewNopLogger(), time.Minute)

	cc := sampleContext()
	payload, err := json.Marshal(cc)
	require.NoError(t, err)

	mock.ExpectSet("bridge:callctx:call-1", payload, time.Minute).SetVal("OK")
	require.NoError(t, store.Put(context.Background(), cc))

	mock.ExpectGet("bridge:callctx:call-1").SetVal(string(payload))
	got, err := store.Get(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "+15551230000", got.CallerNumber)

	mock.ExpectDel("bridge:callctx:call-1").SetVal(1)
	require.NoError(t, store.Delete(context.Background(), "call-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MissReportsNotFound(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(connectors.NewRedisConnectorFromClient(client, commons.NewNopLogger()), commons.NewNopLogger(), 0)

	mock.ExpectGet("bridge:callctx:ghost").RedisNil()
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
