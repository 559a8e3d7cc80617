// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"time"

	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
)

// Config carries the immutable construction parameters of one upstream
// session. It is created per call and never mutated afterwards; overrides are
// applied by copying.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	Temperature       *float32
	OutputMode        internal_upstream.OutputMode

	// Timeout is the transport-imposed hard session duration. The automatic
	// extension fires ExtensionBuffer before it elapses.
	Timeout time.Duration

	EnableInputTranscription  bool
	EnableOutputTranscription bool

	// Tools lists the tool names declared to the backend.
	Tools []string
}

// merged returns a copy of base with every set field of override applied.
// Zero values in override keep the base value.
func (base Config) merged(override *Config) Config {
	out := base
	if override == nil {
		return out
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Voice != "" {
		out.Voice = override.Voice
	}
	if override.SystemInstruction != "" {
		out.SystemInstruction = override.SystemInstruction
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.OutputMode != "" {
		out.OutputMode = override.OutputMode
	}
	if override.Timeout > 0 {
		out.Timeout = override.Timeout
	}
	if override.EnableInputTranscription {
		out.EnableInputTranscription = true
	}
	if override.EnableOutputTranscription {
		out.EnableOutputTranscription = true
	}
	if len(override.Tools) > 0 {
		out.Tools = append([]string(nil), override.Tools...)
	}
	return out
}

func (c Config) connectConfig() internal_upstream.ConnectConfig {
	return internal_upstream.ConnectConfig{
		Model:                     c.Model,
		Voice:                     c.Voice,
		SystemInstruction:         c.SystemInstruction,
		Temperature:               c.Temperature,
		OutputMode:                c.OutputMode,
		EnableInputTranscription:  c.EnableInputTranscription,
		EnableOutputTranscription: c.EnableOutputTranscription,
		Tools:                     append([]string(nil), c.Tools...),
	}
}
