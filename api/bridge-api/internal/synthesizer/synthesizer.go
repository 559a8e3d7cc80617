// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_synthesizer

import "context"

// SpeechConfig selects the voice for one synthesis request.
type SpeechConfig struct {
	Voice        string
	LanguageCode string
	// SampleRate of the produced 16-bit LE mono PCM.
	SampleRate int
}

// Synthesizer converts assistant text into PCM audio. Hybrid sessions use it
// to attach audio to text-only upstream responses.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, cfg SpeechConfig) ([]byte, error)
}
