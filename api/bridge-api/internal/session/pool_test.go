// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
)

func newTestPool(t *testing.T, capacity int, opts ...PoolOption) (*Pool, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	pool := NewPool(commons.NewNopLogger(), dialer, testConfig(), capacity, 200*time.Millisecond, opts...)
	return pool, dialer
}

func TestPool_AcquireUpToCapacity(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	defer pool.TeardownAll(context.Background())

	for i := 0; i < 3; i++ {
		s, err := pool.Acquire(context.Background(), nil)
		require.NoError(t, err)
		require.NotNil(t, s)
	}
	assert.Equal(t, 3, pool.Active())
	assert.Equal(t, 0, pool.Remaining())
}

func TestPool_AdmissionExhausted(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	defer pool.TeardownAll(context.Background())

	_, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)
	_, err = pool.Acquire(context.Background(), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Acquire(context.Background(), nil)
	elapsed := time.Since(start)

	var exhausted *AdmissionExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Capacity)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "acquire should block for the admission window")
	assert.Equal(t, 2, pool.Active())
}

func TestPool_BlockedAcquireProceedsWhenSlotFrees(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	defer pool.TeardownAll(context.Background())

	first, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var second Streamer
	var secondErr error
	go func() {
		defer wg.Done()
		second, secondErr = pool.Acquire(context.Background(), nil)
	}()

	time.Sleep(50 * time.Millisecond)
	pool.Release(first.ID())
	wg.Wait()

	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Equal(t, 1, pool.Active())
}

func TestPool_ReleaseUnknownID(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	assert.NotPanics(t, func() {
		pool.Release("no-such-session")
		pool.Release("")
	})
	assert.Equal(t, 0, pool.Active())
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	s, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)

	pool.Release(s.ID())
	pool.Release(s.ID())
	assert.Equal(t, 0, pool.Active())

	// The slot came back exactly once; a fresh acquire must succeed.
	again, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)
	pool.Release(again.ID())
}

func TestPool_FailedStartReturnsSlot(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("upstream refused")}
	pool := NewPool(commons.NewNopLogger(), dialer, testConfig(), 1, 200*time.Millisecond)

	_, err := pool.Acquire(context.Background(), nil)
	require.Error(t, err)
	var lifecycle *SessionLifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, 0, pool.Active())

	// Slot must be reusable immediately.
	dialer.mu.Lock()
	dialer.dialErr = nil
	dialer.mu.Unlock()
	s, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)
	pool.Release(s.ID())
}

func TestPool_MergesDefaultsIntoOverrides(t *testing.T) {
	pool, dialer := newTestPool(t, 1)
	defer pool.TeardownAll(context.Background())

	s, err := pool.Acquire(context.Background(), &Config{Voice: "override-voice", SystemInstruction: "be brief"})
	require.NoError(t, err)
	require.Equal(t, 1, dialer.dialCount())

	inner, ok := s.(*Session)
	require.True(t, ok)
	assert.Equal(t, "test-model", inner.config.Model, "unset override fields keep pool defaults")
	assert.Equal(t, "override-voice", inner.config.Voice)
	assert.Equal(t, "be brief", inner.config.SystemInstruction)
}

func TestPool_TeardownAll(t *testing.T) {
	pool, dialer := newTestPool(t, 4)

	for i := 0; i < 4; i++ {
		_, err := pool.Acquire(context.Background(), nil)
		require.NoError(t, err)
	}
	pool.TeardownAll(context.Background())

	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, 4, pool.Remaining())
	for i := 0; i < 4; i++ {
		assert.True(t, dialer.conn(i).isClosed(), "conn %d should be closed", i)
	}
}

func TestPool_SnapshotExposesMetadata(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	defer pool.TeardownAll(context.Background())

	a, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)
	b, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)

	infos := pool.Snapshot()
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.Contains(t, ids, a.ID())
	assert.Contains(t, ids, b.ID())
	for _, info := range infos {
		assert.Equal(t, StateActive, info.State)
	}
}

func TestPool_HybridModeWrapsTextSessions(t *testing.T) {
	cfg := testConfig()
	cfg.OutputMode = internal_upstream.OutputModeText
	dialer := &fakeDialer{}
	pool := NewPool(commons.NewNopLogger(), dialer, cfg, 1, 200*time.Millisecond,
		WithSynthesizer(&fakeSynth{audio: []byte{1, 2, 3, 4}}))
	defer pool.TeardownAll(context.Background())

	s, err := pool.Acquire(context.Background(), nil)
	require.NoError(t, err)

	_, isHybrid := s.(*Hybrid)
	assert.True(t, isHybrid, "text-output sessions should be wrapped in hybrid mode")
}
