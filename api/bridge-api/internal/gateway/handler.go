// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_audio "github.com/voxbridgeai/api/bridge-api/internal/audio"
	internal_audio_resampler "github.com/voxbridgeai/api/bridge-api/internal/audio/resampler"
	internal_callmanager "github.com/voxbridgeai/api/bridge-api/internal/callmanager"
	internal_contextstore "github.com/voxbridgeai/api/bridge-api/internal/contextstore"
	internal_recorder "github.com/voxbridgeai/api/bridge-api/internal/recorder"
	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	internal_session "github.com/voxbridgeai/api/bridge-api/internal/session"
	internal_store "github.com/voxbridgeai/api/bridge-api/internal/store"
	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/utils"
)

// Options tunes per-deployment gateway behavior.
type Options struct {
	// AudioFormat is the wire format of binary frames on the gateway leg.
	// Linear16 by default; some carrier hardware speaks µ-law.
	AudioFormat internal_audio.Format

	// EnableRecording captures both legs to WAV files under RecordingDir.
	EnableRecording bool
	RecordingDir    string

	// EnableTranscripts forwards final transcripts to the gateway as
	// call_transcript frames.
	EnableTranscripts bool
}

// Handler accepts gateway websocket connections and runs one connection
// actor per socket. Shared collaborators are concurrency-safe; everything
// per-connection lives on the connection struct.
type Handler struct {
	logger   commons.Logger
	manager  *internal_callmanager.Manager
	router   *internal_routing.Router
	store    internal_store.Store // nil when running without persistence
	contexts internal_contextstore.Store
	opts     Options
}

func NewHandler(
	logger commons.Logger,
	manager *internal_callmanager.Manager,
	router *internal_routing.Router,
	store internal_store.Store,
	contexts internal_contextstore.Store,
	opts Options,
) *Handler {
	if opts.AudioFormat == "" {
		opts.AudioFormat = internal_audio.FormatLinear16
	}
	return &Handler{
		logger:   logger,
		manager:  manager,
		router:   router,
		store:    store,
		contexts: contexts,
		opts:     opts,
	}
}

// Serve runs the read loop for one gateway socket until the peer disconnects
// or ctx is canceled. Every call active on the connection is ended before
// Serve returns.
func (h *Handler) Serve(ctx context.Context, ws *websocket.Conn, gatewayID string) {
	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		handler:   h,
		logger:    h.logger,
		ws:        ws,
		gatewayID: gatewayID,
		ctx:       connCtx,
		cancel:    cancel,
		calls:     make(map[string]*activeCall),
	}
	defer c.shutdown()

	if h.store != nil {
		if err := h.store.TouchDeviceSeen(connCtx, gatewayID); err != nil {
			h.logger.Warnw("failed to stamp gateway last_seen", "gateway_id", gatewayID, "error", err.Error())
		}
	}
	h.logger.Infof("gateway connected: gateway_id=%s remote=%s", gatewayID, ws.RemoteAddr())

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnw("gateway socket closed unexpectedly", "gateway_id", gatewayID, "error", err.Error())
			}
			return
		}
		select {
		case <-connCtx.Done():
			return
		default:
		}

		switch msgType {
		case websocket.TextMessage:
			c.onControl(data)
		case websocket.BinaryMessage:
			c.onAudio(data)
		}
	}
}

// ============================================================================
// Per-connection actor
// ============================================================================

type connection struct {
	handler   *Handler
	logger    commons.Logger
	ws        *websocket.Conn
	gatewayID string

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes all websocket writes; gorilla allows only one
	// concurrent writer.
	writeMu sync.Mutex

	mu    sync.Mutex
	calls map[string]*activeCall
	// media is the call binary audio frames belong to. Gateways carry one
	// media stream per socket even when several calls are in flight on
	// other SIM slots.
	media *activeCall
}

type activeCall struct {
	callID   string
	record   *internal_callmanager.CallRecord
	recorder internal_recorder.Recorder

	transcriptMu sync.Mutex
	transcript   strings.Builder

	endOnce sync.Once
}

func (c *connection) onControl(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warnw("dropping malformed control frame", "gateway_id", c.gatewayID, "error", err.Error())
		return
	}

	switch frame.Type {
	case TypeIncomingCall:
		c.onIncomingCall(frame)
	case TypeCallConnected:
		c.onCallConnected(frame)
	case TypeCallEnded:
		c.onCallEnded(frame)
	default:
		c.logger.Debugf("ignoring unknown control frame: type=%s gateway_id=%s", frame.Type, c.gatewayID)
	}
}

// onIncomingCall routes the announced call and tells the gateway what to do
// with it. The routing decision is parked in the context store until the
// gateway confirms the call is connected.
func (c *connection) onIncomingCall(frame *Frame) {
	if frame.CallID == "" {
		c.logger.Warnf("incoming_call without call_id from gateway %s", c.gatewayID)
		return
	}

	meta := internal_routing.CallMeta{
		CallID:       frame.CallID,
		GatewayID:    c.gatewayID,
		CallerNumber: frame.Caller(),
		CalleeNumber: frame.ToNumber,
		Carrier:      frame.Carrier,
		SimSlot:      frame.SimSlot,
	}
	decision := c.handler.router.Route(c.ctx, meta)

	if err := c.handler.contexts.Put(c.ctx, &internal_contextstore.CallContext{
		CallID:       frame.CallID,
		GatewayID:    c.gatewayID,
		CallerNumber: meta.CallerNumber,
		Decision:     decision,
	}); err != nil {
		c.logger.Warnw("failed to park call context", "call_id", frame.CallID, "error", err.Error())
	}
	c.recordDecision(meta, decision)

	switch decision.Action {
	case internal_routing.ActionReject:
		c.writeFrame(&Frame{Type: TypeRejectCall, CallID: frame.CallID, Reason: decision.RejectReason})
	case internal_routing.ActionForward:
		c.writeFrame(&Frame{Type: TypeForwardCall, CallID: frame.CallID, ForwardTo: decision.ForwardTo})
	default:
		c.writeFrame(&Frame{Type: TypeAnswerCall, CallID: frame.CallID})
	}
}

// onCallConnected attaches a pooled session to the answered call and starts
// relaying media. Session setup failures are reported to the gateway so it
// can drop the call instead of feeding audio into nothing.
func (c *connection) onCallConnected(frame *Frame) {
	cc, err := c.handler.contexts.Get(c.ctx, frame.CallID)
	if err != nil {
		c.logger.Warnw("call_connected for unknown call", "call_id", frame.CallID, "error", err.Error())
		c.writeFrame(&Frame{Type: TypeSessionError, CallID: frame.CallID, Reason: "unknown_call"})
		return
	}
	if cc.Decision.Action != internal_routing.ActionAnswer {
		c.logger.Warnf("call_connected for non-answered call: call_id=%s action=%s", frame.CallID, cc.Decision.Action)
		return
	}

	override := overrideFromDecision(cc.Decision)
	record, err := c.handler.manager.CreateSession(c.ctx, frame.CallID, c.gatewayID, cc.CallerNumber, override)
	if err != nil {
		c.logger.Errorw("failed to attach session", "call_id", frame.CallID, "error", err.Error())
		c.writeFrame(&Frame{Type: TypeSessionError, CallID: frame.CallID, Reason: sessionErrorReason(err)})
		c.finishInteraction(frame.CallID, internal_store.InteractionClosing{Status: internal_store.InteractionFailed})
		_ = c.handler.contexts.Delete(c.ctx, frame.CallID)
		return
	}

	call := &activeCall{callID: frame.CallID, record: record}
	if c.handler.opts.EnableRecording {
		call.recorder = internal_recorder.NewCallRecorder(c.logger)
		call.recorder.Start()
	}

	c.mu.Lock()
	c.calls[frame.CallID] = call
	c.media = call
	c.mu.Unlock()

	c.writeFrame(&Frame{Type: TypeSessionReady, CallID: frame.CallID, SessionID: record.Session.ID()})
	utils.Go(c.ctx, func() { c.pumpSession(call) })
}

func (c *connection) onCallEnded(frame *Frame) {
	c.endCall(frame.CallID, frame.Reason)
}

// onAudio relays one binary frame from the gateway into the media call's
// session, converting from the gateway wire format to the upstream input
// format. Malformed frames are dropped, not fatal.
func (c *connection) onAudio(data []byte) {
	c.mu.Lock()
	call := c.media
	c.mu.Unlock()
	if call == nil {
		return
	}

	pcm := data
	if c.handler.opts.AudioFormat == internal_audio.FormatMulaw {
		pcm = internal_audio.DecodeMulaw(data)
	}
	if call.recorder != nil {
		call.recorder.RecordCaller(pcm)
	}

	upstreamPCM, err := internal_audio_resampler.Resample(pcm, internal_audio.GatewaySampleRate, internal_audio.UpstreamInputSampleRate)
	if err != nil {
		var malformed *internal_audio_resampler.MalformedAudioError
		if errors.As(err, &malformed) {
			c.logger.Warnw("dropping malformed audio frame", "call_id", call.callID, "length", malformed.Length)
			return
		}
		c.logger.Warnw("audio conversion failed", "call_id", call.callID, "error", err.Error())
		return
	}

	if err := call.record.Session.SendAudio(c.ctx, upstreamPCM); err != nil {
		var timeout *internal_session.SessionTimeoutError
		if errors.As(err, &timeout) {
			c.writeFrame(&Frame{Type: TypeSessionError, CallID: call.callID, Reason: "session_timeout"})
			c.endCall(call.callID, "session_timeout")
			return
		}
		c.logger.Debugf("send_audio failed: call_id=%s err=%v", call.callID, err)
	}
}

// ============================================================================
// Session event pump, one goroutine per attached call
// ============================================================================

func (c *connection) pumpSession(call *activeCall) {
	session := call.record.Session
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-session.Done():
			if err := session.Err(); err != nil {
				c.logger.Warnw("session ended with error", "call_id", call.callID, "error", err.Error())
				c.writeFrame(&Frame{Type: TypeSessionError, CallID: call.callID, Reason: sessionErrorReason(err)})
				c.endCall(call.callID, "session_failed")
			}
			return
		case ev, ok := <-session.Receive():
			if !ok {
				return
			}
			c.relayEvent(call, ev)
		}
	}
}

func (c *connection) relayEvent(call *activeCall, ev *internal_upstream.Event) {
	if len(ev.Audio) > 0 {
		c.relayAudio(call, ev.Audio)
	}

	if ev.InputTranscript != "" && ev.TranscriptFinal {
		call.appendTranscript(SpeakerCaller, ev.InputTranscript)
		if c.handler.opts.EnableTranscripts {
			c.writeFrame(&Frame{
				Type: TypeTranscript, CallID: call.callID,
				Speaker: SpeakerCaller, Text: ev.InputTranscript, InputTranscript: ev.InputTranscript,
			})
		}
	}
	if ev.OutputTranscript != "" && ev.TranscriptFinal {
		call.appendTranscript(SpeakerAssistant, ev.OutputTranscript)
		if c.handler.opts.EnableTranscripts {
			c.writeFrame(&Frame{
				Type: TypeTranscript, CallID: call.callID,
				Speaker: SpeakerAssistant, Text: ev.OutputTranscript, OutputTranscript: ev.OutputTranscript,
			})
		}
	}
	if ev.Text != "" && ev.OutputTranscript == "" {
		// Text-mode sessions produce plain text instead of transcripts.
		call.appendTranscript(SpeakerAssistant, ev.Text)
	}

	if len(ev.ToolCalls) > 0 {
		c.handleToolCalls(call, ev.ToolCalls)
	}

	if ev.TurnComplete {
		c.writeFrame(&Frame{Type: TypeTurnComplete, CallID: call.callID, WasInterrupted: ev.Interrupted})
	}
}

// relayAudio downsamples one upstream chunk to the gateway rate and ships it
// as a binary frame, in the configured wire format.
func (c *connection) relayAudio(call *activeCall, audio []byte) {
	gatewayPCM, err := internal_audio_resampler.Resample(audio, internal_audio.UpstreamOutputSampleRate, internal_audio.GatewaySampleRate)
	if err != nil {
		c.logger.Warnw("failed to downsample assistant audio", "call_id", call.callID, "error", err.Error())
		return
	}
	if call.recorder != nil {
		call.recorder.RecordAssistant(gatewayPCM)
	}

	wire := gatewayPCM
	if c.handler.opts.AudioFormat == internal_audio.FormatMulaw {
		wire = internal_audio.EncodeMulaw(gatewayPCM)
	}
	c.writeBinary(wire)
}

// handleToolCalls surfaces tool activity to the gateway and acknowledges the
// call upstream so the conversation continues. Tool execution itself lives
// outside the bridge.
func (c *connection) handleToolCalls(call *activeCall, calls []internal_upstream.ToolCall) {
	results := make([]internal_upstream.ToolResult, 0, len(calls))
	for _, tc := range calls {
		c.writeFrame(&Frame{
			Type: TypeToolStatus, CallID: call.callID,
			ToolName: tc.Name, ToolCallID: tc.ID, Status: "invoked",
		})
		results = append(results, internal_upstream.ToolResult{
			ID:       tc.ID,
			Name:     tc.Name,
			Response: map[string]interface{}{"status": "acknowledged"},
		})
	}
	if err := call.record.Session.SendToolResponse(c.ctx, results); err != nil {
		c.logger.Warnw("failed to answer tool call", "call_id", call.callID, "error", err.Error())
		return
	}
	for _, tc := range calls {
		c.writeFrame(&Frame{
			Type: TypeToolStatus, CallID: call.callID,
			ToolName: tc.Name, ToolCallID: tc.ID, Status: "completed",
		})
	}
}

// ============================================================================
// Call teardown
// ============================================================================

// endCall releases the session, persists the interaction outcome and drops
// the call context. Runs at most once per call no matter how many paths race
// into it (call_ended frame, session failure, socket close).
func (c *connection) endCall(callID, reason string) {
	c.mu.Lock()
	call, ok := c.calls[callID]
	if ok {
		delete(c.calls, callID)
		if c.media == call {
			c.media = nil
		}
	}
	c.mu.Unlock()
	if !ok {
		// A rejected or forwarded call never had a session attached.
		_ = c.handler.contexts.Delete(context.Background(), callID)
		return
	}

	call.endOnce.Do(func() {
		info := call.record.Session.Info()
		c.handler.manager.EndSession(callID)

		closing := internal_store.InteractionClosing{
			Status:     internal_store.InteractionCompleted,
			Transcript: call.transcriptText(),
		}
		if reason == "session_failed" || reason == "session_timeout" {
			closing.Status = internal_store.InteractionFailed
		}
		if info.Resumed {
			closing.Resumptions = 1
		}
		if call.recorder != nil {
			path, err := internal_recorder.SaveTo(call.recorder, c.handler.opts.RecordingDir, callID)
			if err != nil {
				c.logger.Warnw("failed to persist call recording", "call_id", callID, "error", err.Error())
			} else {
				closing.RecordingPath = path
			}
		}
		c.finishInteraction(callID, closing)
		_ = c.handler.contexts.Delete(context.Background(), callID)

		c.logger.Infof("call ended: call_id=%s reason=%s gateway_id=%s", callID, reason, c.gatewayID)
	})
}

// shutdown ends every call still active on this socket.
func (c *connection) shutdown() {
	c.cancel()

	c.mu.Lock()
	ids := make([]string, 0, len(c.calls))
	for id := range c.calls {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.endCall(id, "gateway_disconnected")
	}
	c.logger.Infof("gateway disconnected: gateway_id=%s calls_ended=%d", c.gatewayID, len(ids))
}

// ============================================================================
// Persistence and write helpers
// ============================================================================

func (c *connection) recordDecision(meta internal_routing.CallMeta, decision internal_routing.Decision) {
	if c.handler.store == nil {
		return
	}
	interaction := &internal_store.Interaction{
		CallID:       meta.CallID,
		GatewayID:    meta.GatewayID,
		CallerNumber: meta.CallerNumber,
		ContactID:    decision.ContactID,
		RuleID:       decision.RuleID,
		Action:       string(decision.Action),
		RejectReason: decision.RejectReason,
		ForwardTo:    decision.ForwardTo,
	}
	if decision.OrgID != nil {
		interaction.OrganizationID = *decision.OrgID
	}
	if decision.Action != internal_routing.ActionAnswer {
		// Rejects and forwards are terminal at decision time.
		interaction.Status = internal_store.InteractionCompleted
	}
	if err := c.handler.store.CreateInteraction(c.ctx, interaction); err != nil {
		c.logger.Warnw("failed to record interaction", "call_id", meta.CallID, "error", err.Error())
	}
}

func (c *connection) finishInteraction(callID string, closing internal_store.InteractionClosing) {
	if c.handler.store == nil {
		return
	}
	if err := c.handler.store.CompleteInteraction(context.Background(), callID, closing); err != nil {
		c.logger.Warnw("failed to complete interaction", "call_id", callID, "error", err.Error())
	}
}

func (c *connection) writeFrame(frame *Frame) {
	data, err := frame.Encode()
	if err != nil {
		c.logger.Errorw("failed to encode frame", "type", frame.Type, "error", err.Error())
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debugf("frame write failed: type=%s gateway_id=%s err=%v", frame.Type, c.gatewayID, err)
	}
}

func (c *connection) writeBinary(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.logger.Debugf("audio write failed: gateway_id=%s err=%v", c.gatewayID, err)
	}
}

func overrideFromDecision(decision internal_routing.Decision) *internal_session.Config {
	if decision.SystemInstruction == "" && decision.VoiceName == "" {
		return nil
	}
	return &internal_session.Config{
		SystemInstruction: decision.SystemInstruction,
		Voice:             decision.VoiceName,
	}
}

func sessionErrorReason(err error) string {
	var exhausted *internal_session.AdmissionExhaustedError
	if errors.As(err, &exhausted) {
		return "capacity_exhausted"
	}
	var timeout *internal_session.SessionTimeoutError
	if errors.As(err, &timeout) {
		return "session_timeout"
	}
	var lifecycle *internal_session.SessionLifecycleError
	if errors.As(err, &lifecycle) {
		return "session_unavailable"
	}
	return "internal_error"
}

func (call *activeCall) appendTranscript(speaker, text string) {
	call.transcriptMu.Lock()
	defer call.transcriptMu.Unlock()
	if call.transcript.Len() > 0 {
		call.transcript.WriteByte('\n')
	}
	call.transcript.WriteString(speaker)
	call.transcript.WriteString(": ")
	call.transcript.WriteString(text)
}

func (call *activeCall) transcriptText() string {
	call.transcriptMu.Lock()
	defer call.transcriptMu.Unlock()
	return call.transcript.String()
}
