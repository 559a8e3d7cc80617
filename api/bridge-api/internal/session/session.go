// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
)

// Session lifecycle states.
const (
	StateConnecting = "connecting"
	StateActive     = "active"
	StateExtending  = "extending"
	StateError      = "error"
	StateClosing    = "closing"
	StateClosed     = "closed"
)

// FSM event names.
const (
	eventStart  = "start"
	eventExtend = "extend"
	eventResume = "resume"
	eventFail   = "fail"
	eventClose  = "close"
	eventClosed = "closed"
)

// ExtensionBuffer is how long before the transport-imposed session deadline
// the automatic extension fires.
const ExtensionBuffer = 60 * time.Second

// dialTimeout bounds the replacement-transport dial during extension.
const dialTimeout = 30 * time.Second

const eventChannelSize = 256

// Streamer is what callers hold once a session is acquired from the pool.
// Both *Session and *Hybrid satisfy it.
type Streamer interface {
	ID() string
	State() string

	SendAudio(ctx context.Context, chunk []byte) error
	SendAudioEnd(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SendToolResponse(ctx context.Context, results []internal_upstream.ToolResult) error

	// Receive yields upstream response events. It must be drained
	// continuously while the call is active; it is the caller's only window
	// into call progress.
	Receive() <-chan *internal_upstream.Event

	// Done is closed when the session becomes unusable (teardown, transport
	// failure, or failed extension).
	Done() <-chan struct{}
	Err() error

	Info() Info
	Teardown() error
}

// MetricsSnapshot is a point-in-time copy of the session counters.
type MetricsSnapshot struct {
	ChunksSent     uint64 `json:"chunks_sent"`
	ChunksReceived uint64 `json:"chunks_received"`
	BytesSent      uint64 `json:"bytes_sent"`
	BytesReceived  uint64 `json:"bytes_received"`
}

// Info is the per-session metadata exposed by the pool snapshot.
type Info struct {
	ID             string          `json:"id"`
	State          string          `json:"state"`
	Resumed        bool            `json:"resumed"`
	Metrics        MetricsSnapshot `json:"metrics"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// Session wraps one upstream streaming connection and owns its lifecycle:
// state machine, receive pump, metrics, and the automatic extension that
// carries conversational context across the transport's hard duration limit.
type Session struct {
	id     string
	logger commons.Logger
	dialer internal_upstream.Dialer
	config Config

	machine *fsm.FSM

	// connMu guards conn and resumed across the extension transport swap.
	connMu  sync.Mutex
	conn    internal_upstream.Conn
	resumed bool

	timerMu     sync.Mutex
	extendTimer *time.Timer

	events chan *internal_upstream.Event
	done   chan struct{}
	// doneOnce makes the done closure idempotent across teardown and failure.
	doneOnce sync.Once
	teardown sync.Once

	errMu    sync.Mutex
	termErr  error
	timedOut atomic.Bool

	chunksSent     atomic.Uint64
	chunksReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64

	createdAt    time.Time
	lastActivity atomic.Int64 // unix nanos
}

// NewSession builds a session in the connecting state. Start opens the
// upstream transport.
func NewSession(logger commons.Logger, dialer internal_upstream.Dialer, cfg Config) *Session {
	s := &Session{
		id:        uuid.New().String(),
		logger:    logger,
		dialer:    dialer,
		config:    cfg,
		events:    make(chan *internal_upstream.Event, eventChannelSize),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	s.lastActivity.Store(s.createdAt.UnixNano())
	s.machine = fsm.NewFSM(
		StateConnecting,
		fsm.Events{
			{Name: eventStart, Src: []string{StateConnecting}, Dst: StateActive},
			{Name: eventExtend, Src: []string{StateActive}, Dst: StateExtending},
			{Name: eventResume, Src: []string{StateExtending}, Dst: StateActive},
			{Name: eventFail, Src: []string{StateConnecting, StateActive, StateExtending}, Dst: StateError},
			{Name: eventClose, Src: []string{StateConnecting, StateActive, StateExtending, StateError}, Dst: StateClosing},
			{Name: eventClosed, Src: []string{StateClosing}, Dst: StateClosed},
		}, nil,
	)
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) State() string { return s.machine.Current() }

// Start opens the upstream transport and moves the session to active. It is
// the only transition out of connecting and errors if called twice.
func (s *Session) Start(ctx context.Context) error {
	if st := s.machine.Current(); st != StateConnecting {
		return &SessionLifecycleError{SessionID: s.id, State: st, Op: "start"}
	}

	conn, err := s.dialer.Dial(ctx, s.config.connectConfig(), "")
	if err != nil {
		s.fail(fmt.Errorf("upstream connect: %w", err))
		return &SessionLifecycleError{SessionID: s.id, State: s.machine.Current(), Op: "start", Err: err}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if err := s.machine.Event(ctx, eventStart); err != nil {
		_ = conn.Close()
		return &SessionLifecycleError{SessionID: s.id, State: s.machine.Current(), Op: "start", Err: err}
	}

	go s.pump(conn)
	s.scheduleExtension()

	s.logger.Debugf("session started: id=%s model=%s timeout=%s", s.id, s.config.Model, s.config.Timeout)
	return nil
}

// ============================================================================
// I/O
// ============================================================================

func (s *Session) SendAudio(ctx context.Context, chunk []byte) error {
	conn, err := s.ioConn("send_audio")
	if err != nil {
		return err
	}
	if err := conn.SendAudio(ctx, chunk); err != nil {
		return &SessionLifecycleError{SessionID: s.id, State: s.State(), Op: "send_audio", Err: err}
	}
	s.chunksSent.Add(1)
	s.bytesSent.Add(uint64(len(chunk)))
	s.touch()
	return nil
}

func (s *Session) SendAudioEnd(ctx context.Context) error {
	conn, err := s.ioConn("send_audio_end")
	if err != nil {
		return err
	}
	if err := conn.SendAudioEnd(ctx); err != nil {
		return &SessionLifecycleError{SessionID: s.id, State: s.State(), Op: "send_audio_end", Err: err}
	}
	s.touch()
	return nil
}

func (s *Session) SendText(ctx context.Context, text string) error {
	conn, err := s.ioConn("send_text")
	if err != nil {
		return err
	}
	if err := conn.SendText(ctx, text); err != nil {
		return &SessionLifecycleError{SessionID: s.id, State: s.State(), Op: "send_text", Err: err}
	}
	s.touch()
	return nil
}

func (s *Session) SendToolResponse(ctx context.Context, results []internal_upstream.ToolResult) error {
	conn, err := s.ioConn("send_tool_response")
	if err != nil {
		return err
	}
	if err := conn.SendToolResponse(ctx, results); err != nil {
		return &SessionLifecycleError{SessionID: s.id, State: s.State(), Op: "send_tool_response", Err: err}
	}
	s.touch()
	return nil
}

func (s *Session) Receive() <-chan *internal_upstream.Event {
	return s.events
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.termErr
}

// ioConn gates every I/O operation on the lifecycle state and hands back the
// current transport. A session whose extension failed reports the
// timeout-specific error so the caller ends the call instead of stalling.
func (s *Session) ioConn(op string) (internal_upstream.Conn, error) {
	switch st := s.machine.Current(); st {
	case StateActive, StateExtending:
	case StateError:
		if s.timedOut.Load() {
			return nil, &SessionTimeoutError{SessionID: s.id, Err: s.Err()}
		}
		return nil, &SessionLifecycleError{SessionID: s.id, State: st, Op: op, Err: s.Err()}
	default:
		return nil, &SessionLifecycleError{SessionID: s.id, State: st, Op: op}
	}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return nil, &SessionLifecycleError{SessionID: s.id, State: s.machine.Current(), Op: op}
	}
	return conn, nil
}

// ============================================================================
// Receive pump
// ============================================================================

// pump drains one transport into the session-stable events channel. The
// channel survives the extension swap, so consumers never observe the hop.
func (s *Session) pump(conn internal_upstream.Conn) {
	for {
		ev, err := conn.Receive()
		if err != nil {
			if s.currentConn() != conn {
				// Superseded by an extension swap; the new transport's pump
				// has taken over.
				return
			}
			select {
			case <-s.done:
			default:
				if st := s.machine.Current(); st == StateActive || st == StateConnecting {
					s.logger.Warnw("upstream receive failed", "session_id", s.id, "error", err.Error())
					s.fail(err)
				}
			}
			return
		}

		if len(ev.Audio) > 0 {
			s.chunksReceived.Add(1)
			s.bytesReceived.Add(uint64(len(ev.Audio)))
		}
		s.touch()

		if ev.GoAway {
			// The server is about to drop the transport; extend now instead
			// of waiting for the timer.
			s.logger.Debugf("session %s received go-away, extending early", s.id)
			go s.extendNow()
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// ============================================================================
// Automatic extension
// ============================================================================

func (s *Session) scheduleExtension() {
	if s.config.Timeout <= ExtensionBuffer {
		return
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.extendTimer = time.AfterFunc(s.config.Timeout-ExtensionBuffer, s.extendNow)
}

// extendNow swaps the live transport for a fresh one carrying the resumption
// token, keeping the events channel intact so no audio in flight is lost.
// Failure is terminal: the session enters error and I/O reports
// SessionTimeoutError. A missing token is not retried.
func (s *Session) extendNow() {
	if err := s.machine.Event(context.Background(), eventExtend); err != nil {
		// No longer active (closing, or a concurrent extension won).
		return
	}

	old := s.currentConn()
	if old == nil {
		s.failTimeout(fmt.Errorf("no live transport to extend"))
		return
	}
	token := old.ResumptionToken()
	if token == "" {
		s.failTimeout(fmt.Errorf("upstream issued no resumption token before extension window"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	replacement, err := s.dialer.Dial(ctx, s.config.connectConfig(), token)
	if err != nil {
		s.failTimeout(fmt.Errorf("re-dial with resumption token: %w", err))
		return
	}

	s.connMu.Lock()
	s.conn = replacement
	s.resumed = true
	s.connMu.Unlock()

	go s.pump(replacement)
	// Closing the old transport unblocks its pump, which exits as superseded.
	if err := old.Close(); err != nil {
		s.logger.Debugf("session %s: closing superseded transport: %v", s.id, err)
	}

	if err := s.machine.Event(context.Background(), eventResume); err != nil {
		// Torn down mid-swap.
		_ = replacement.Close()
		return
	}
	s.scheduleExtension()
	s.logger.Infof("session extended: id=%s", s.id)
}

func (s *Session) failTimeout(err error) {
	s.timedOut.Store(true)
	s.logger.Errorw("session extension failed", "session_id", s.id, "error", err.Error())
	s.fail(err)
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.termErr == nil {
		s.termErr = err
	}
	s.errMu.Unlock()
	_ = s.machine.Event(context.Background(), eventFail)
	s.doneOnce.Do(func() { close(s.done) })
}

// ============================================================================
// Teardown
// ============================================================================

// Teardown cancels the extension timer, closes the transport and moves the
// session to closed. Safe to call from any state, any number of times.
func (s *Session) Teardown() error {
	var closeErr error
	s.teardown.Do(func() {
		s.timerMu.Lock()
		if s.extendTimer != nil {
			s.extendTimer.Stop()
			s.extendTimer = nil
		}
		s.timerMu.Unlock()

		_ = s.machine.Event(context.Background(), eventClose)

		s.connMu.Lock()
		conn := s.conn
		s.conn = nil
		s.connMu.Unlock()
		if conn != nil {
			closeErr = conn.Close()
		}

		_ = s.machine.Event(context.Background(), eventClosed)
		s.doneOnce.Do(func() { close(s.done) })
		s.logger.Debugf("session torn down: id=%s", s.id)
	})
	return closeErr
}

// ============================================================================
// Observability
// ============================================================================

func (s *Session) Info() Info {
	s.connMu.Lock()
	resumed := s.resumed
	s.connMu.Unlock()
	return Info{
		ID:             s.id,
		State:          s.machine.Current(),
		Resumed:        resumed,
		Metrics:        s.metrics(),
		CreatedAt:      s.createdAt,
		LastActivityAt: time.Unix(0, s.lastActivity.Load()),
	}
}

func (s *Session) metrics() MetricsSnapshot {
	return MetricsSnapshot{
		ChunksSent:     s.chunksSent.Load(),
		ChunksReceived: s.chunksReceived.Load(),
		BytesSent:      s.bytesSent.Load(),
		BytesReceived:  s.bytesReceived.Load(),
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) currentConn() internal_upstream.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}
