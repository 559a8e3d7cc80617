// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"fmt"
	"time"
)

// AdmissionExhaustedError is returned by Pool.Acquire when no capacity slot
// frees up within the admission timeout.
type AdmissionExhaustedError struct {
	Capacity int
	Timeout  time.Duration
}

func (e *AdmissionExhaustedError) Error() string {
	return fmt.Sprintf("session pool exhausted: %d slots busy for %s", e.Capacity, e.Timeout)
}

// SessionLifecycleError reports an operation that is illegal for the
// session's current state, or a connect/teardown failure.
type SessionLifecycleError struct {
	SessionID string
	State     string
	Op        string
	Err       error
}

func (e *SessionLifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: %s failed in state %s: %v", e.SessionID, e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("session %s: %s not allowed in state %s", e.SessionID, e.Op, e.State)
}

func (e *SessionLifecycleError) Unwrap() error { return e.Err }

// SessionTimeoutError marks a session whose automatic extension failed. The
// session is unusable; callers must end the call instead of stalling on it.
type SessionTimeoutError struct {
	SessionID string
	Err       error
}

func (e *SessionTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s timed out: extension failed: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("session %s timed out: extension failed", e.SessionID)
}

func (e *SessionTimeoutError) Unwrap() error { return e.Err }
