// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_gateway

import (
	"encoding/json"
	"fmt"
)

// Frame types sent by the gateway device.
const (
	TypeIncomingCall  = "incoming_call"
	TypeCallConnected = "call_connected"
	TypeCallEnded     = "call_ended"
)

// Frame types sent by the bridge.
const (
	TypeAnswerCall    = "answer_call"
	TypeRejectCall    = "reject_call"
	TypeForwardCall   = "forward_call"
	TypeSessionReady  = "session_ready"
	TypeSessionError  = "session_error"
	TypeTurnComplete  = "turn_complete"
	TypeTranscript    = "call_transcript"
	TypeToolStatus    = "tool_status"
)

// Transcript speakers.
const (
	SpeakerCaller    = "caller"
	SpeakerAssistant = "assistant"
)

// Frame is the single JSON envelope for every control message on the
// gateway socket, in both directions. The type field selects which of the
// optional fields are meaningful. Binary websocket frames carry raw PCM and
// never use this envelope.
type Frame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`

	// incoming_call. Older firmware sends caller_number instead of
	// from_number; both are accepted.
	FromNumber   string `json:"from_number,omitempty"`
	CallerNumber string `json:"caller_number,omitempty"`
	ToNumber     string `json:"to_number,omitempty"`
	Carrier      string `json:"carrier,omitempty"`
	SimSlot      int    `json:"sim_slot,omitempty"`
	GatewayID    string `json:"gateway_id,omitempty"`

	// call_ended, reject_call, session_error
	Reason string `json:"reason,omitempty"`

	// forward_call
	ForwardTo string `json:"forward_to,omitempty"`

	// session_ready
	SessionID string `json:"session_id,omitempty"`

	// call_transcript. Text always carries the line; the direction-specific
	// mirror fields stay populated for firmware that reads only those.
	Speaker          string `json:"speaker,omitempty"`
	Text             string `json:"text,omitempty"`
	InputTranscript  string `json:"input_transcript,omitempty"`
	OutputTranscript string `json:"output_transcript,omitempty"`

	// turn_complete
	WasInterrupted bool `json:"was_interrupted,omitempty"`

	// tool_status
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// DecodeFrame parses one control frame. Unknown fields are ignored so older
// gateway firmware can talk to newer bridges.
func DecodeFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed control frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("control frame missing type")
	}
	return &frame, nil
}

// Caller returns the announced caller number, whichever field carried it.
func (f *Frame) Caller() string {
	if f.FromNumber != "" {
		return f.FromNumber
	}
	return f.CallerNumber
}

func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	return data, nil
}
