// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_callmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_session "github.com/voxbridgeai/api/bridge-api/internal/session"
	"github.com/voxbridgeai/pkg/commons"
)

// CallRecord ties one live call to the session it owns a reference to. The
// pool keeps ownership of the session; the record is destroyed when the call
// ends and the session slot goes back.
type CallRecord struct {
	CallID       string
	GatewayID    string
	CallerNumber string
	Session      internal_session.Streamer
	StartedAt    time.Time
}

// Manager maps external call identifiers to pool-acquired sessions. All
// methods are safe for concurrent use by many connection handlers.
type Manager struct {
	logger commons.Logger
	pool   *internal_session.Pool

	mu    sync.Mutex
	calls map[string]*CallRecord
}

func NewManager(logger commons.Logger, pool *internal_session.Pool) *Manager {
	return &Manager{
		logger: logger,
		pool:   pool,
		calls:  make(map[string]*CallRecord),
	}
}

// CreateSession acquires a session from the pool and records the call
// mapping. A call_id that is already mapped is an error; the admission slot
// is only consumed after that check passes.
func (m *Manager) CreateSession(
	ctx context.Context,
	callID, gatewayID, callerNumber string,
	override *internal_session.Config,
) (*CallRecord, error) {
	m.mu.Lock()
	if _, exists := m.calls[callID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("call %s already has an active session", callID)
	}
	m.mu.Unlock()

	streamer, err := m.pool.Acquire(ctx, override)
	if err != nil {
		return nil, err
	}

	record := &CallRecord{
		CallID:       callID,
		GatewayID:    gatewayID,
		CallerNumber: callerNumber,
		Session:      streamer,
		StartedAt:    time.Now(),
	}

	m.mu.Lock()
	if _, exists := m.calls[callID]; exists {
		// Lost the race to a concurrent create for the same call.
		m.mu.Unlock()
		m.pool.Release(streamer.ID())
		return nil, fmt.Errorf("call %s already has an active session", callID)
	}
	m.calls[callID] = record
	m.mu.Unlock()

	m.logger.Infof("call session created: call_id=%s gateway=%s session=%s", callID, gatewayID, streamer.ID())
	return record, nil
}

// GetSession returns the session mapped to callID, if any.
func (m *Manager) GetSession(callID string) (internal_session.Streamer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.calls[callID]
	if !ok {
		return nil, false
	}
	return record.Session, true
}

// GetRecord returns the call record mapped to callID, if any.
func (m *Manager) GetRecord(callID string) (*CallRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.calls[callID]
	return record, ok
}

// EndSession removes the mapping and releases the session back to the pool.
// Unknown or already-ended calls are logged and ignored.
func (m *Manager) EndSession(callID string) {
	m.mu.Lock()
	record, ok := m.calls[callID]
	if ok {
		delete(m.calls, callID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debugf("end_session for unknown call: call_id=%s", callID)
		return
	}

	m.pool.Release(record.Session.ID())
	m.logger.Infof("call session ended: call_id=%s session=%s duration=%s",
		callID, record.Session.ID(), time.Since(record.StartedAt).Round(time.Millisecond))
}

// Active returns the number of live call mappings.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// TeardownAll ends every active call. Used at process shutdown.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.calls))
	for id := range m.calls {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.EndSession(id)
	}
	m.logger.Infof("call manager drained: ended=%d", len(ids))
}
