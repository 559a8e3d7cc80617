// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	internal_synthesizer "github.com/voxbridgeai/api/bridge-api/internal/synthesizer"
	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSynthesizer enables hybrid mode: sessions whose config asks for text
// output are wrapped so synthesized audio is attached on the way out.
func WithSynthesizer(synth internal_synthesizer.Synthesizer) PoolOption {
	return func(p *Pool) { p.synth = synth }
}

// Pool admits new sessions while capacity remains and tracks
// every live session until it is released. The semaphore is the only
// cross-connection admission gate in the process.
type Pool struct {
	logger           commons.Logger
	dialer           internal_upstream.Dialer
	defaults         Config
	capacity         int
	admissionTimeout time.Duration

	sem   *semaphore.Weighted
	synth internal_synthesizer.Synthesizer

	mu       sync.Mutex
	sessions map[string]Streamer
}

// NewPool builds a pool with the given global capacity. Pool-wide defaults
// are merged into the unset fields of every per-call config.
func NewPool(
	logger commons.Logger,
	dialer internal_upstream.Dialer,
	defaults Config,
	capacity int,
	admissionTimeout time.Duration,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		logger:           logger,
		dialer:           dialer,
		defaults:         defaults,
		capacity:         capacity,
		admissionTimeout: admissionTimeout,
		sem:              semaphore.NewWeighted(int64(capacity)),
		sessions:         make(map[string]Streamer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire blocks until a capacity slot frees up or the admission timeout
// elapses, then constructs and starts a session. A session that fails to
// start returns its slot immediately.
func (p *Pool) Acquire(ctx context.Context, override *Config) (Streamer, error) {
	admitCtx, cancel := context.WithTimeout(ctx, p.admissionTimeout)
	defer cancel()

	if err := p.sem.Acquire(admitCtx, 1); err != nil {
		return nil, &AdmissionExhaustedError{Capacity: p.capacity, Timeout: p.admissionTimeout}
	}

	cfg := p.defaults.merged(override)
	inner := NewSession(p.logger, p.dialer, cfg)
	if err := inner.Start(ctx); err != nil {
		// No slot leak: the slot is returned before the error propagates.
		p.sem.Release(1)
		return nil, err
	}

	var streamer Streamer = inner
	if p.synth != nil && cfg.OutputMode == internal_upstream.OutputModeText {
		streamer = NewHybrid(p.logger, inner, p.synth)
	}

	p.mu.Lock()
	p.sessions[streamer.ID()] = streamer
	active := len(p.sessions)
	p.mu.Unlock()

	p.logger.Infof("session acquired: id=%s active=%d/%d", streamer.ID(), active, p.capacity)
	return streamer, nil
}

// Release unregisters and tears down a session, returning its slot. Unknown
// or already-released ids are a no-op; teardown failures are logged, never
// raised, and never withhold the slot.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	streamer, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	if err := streamer.Teardown(); err != nil {
		p.logger.Warnw("session teardown failed during release", "session_id", id, "error", err.Error())
	}
	p.sem.Release(1)
	p.logger.Debugf("session released: id=%s", id)
}

// TeardownAll concurrently releases every registered session. Individual
// failures are logged without aborting the sweep.
func (p *Pool) TeardownAll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			p.Release(id)
			return nil
		})
	}
	_ = g.Wait()
	p.logger.Infof("session pool drained: released=%d", len(ids))
}

// Active returns the number of registered sessions.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Capacity returns the maximum number of concurrently admitted sessions.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Remaining returns how many more sessions the pool would admit right now.
func (p *Pool) Remaining() int {
	return p.capacity - p.Active()
}

// Snapshot returns per-session metadata sorted by creation time.
func (p *Pool) Snapshot() []Info {
	p.mu.Lock()
	infos := make([]Info, 0, len(p.sessions))
	for _, s := range p.sessions {
		infos = append(infos, s.Info())
	}
	p.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}
