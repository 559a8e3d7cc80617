// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_upstream

import (
	"context"
)

// OutputMode selects what the upstream backend produces for each turn.
type OutputMode string

const (
	OutputModeAudio OutputMode = "audio"
	OutputModeText  OutputMode = "text"
)

// ConnectConfig carries the per-session parameters handed to Dial. The bridge
// is agnostic to the concrete vendor protocol behind it.
type ConnectConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Temperature       *float32
	OutputMode        OutputMode

	EnableInputTranscription  bool
	EnableOutputTranscription bool

	// Tools lists the enabled tool names declared to the backend.
	Tools []string
}

// ToolCall is a tool invocation requested by the backend mid-conversation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]interface{}
}

// Event is one response item drained from a live connection. Exactly the
// fields relevant to the message are populated.
type Event struct {
	// Audio is a chunk of 16-bit LE mono PCM at the upstream output rate.
	Audio []byte
	// Text is assistant text (text output mode, or alongside audio).
	Text string

	InputTranscript  string
	OutputTranscript string
	TranscriptFinal  bool

	TurnComplete bool
	Interrupted  bool

	ToolCalls []ToolCall

	// GoAway signals the server will drop the transport shortly.
	GoAway bool
}

// Conn is one live upstream streaming connection.
//
// Receive blocks until the next event and returns io.EOF once the server has
// closed the stream. ResumptionToken returns the most recent resumption handle
// issued by the server ("" until one arrives); handing it back to Dial opens
// a new transport that continues the same conversational context.
type Conn interface {
	SendAudio(ctx context.Context, chunk []byte) error
	SendAudioEnd(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SendToolResponse(ctx context.Context, results []ToolResult) error
	Receive() (*Event, error)
	ResumptionToken() string
	Close() error
}

// Dialer opens upstream connections. An empty resumptionToken starts a fresh
// session; a non-empty one resumes prior context on a new transport.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig, resumptionToken string) (Conn, error)
}
