// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_audio

import (
	"github.com/zaf/g711"
)

// Audio formats carried on the gateway leg. Everything past the gateway
// handler is linear16; µ-law devices are transcoded at the edge. Both
// formats run at the 16 kHz gateway rate, µ-law only changes the sample
// encoding on the wire, never the rate.
type Format string

const (
	FormatLinear16 Format = "linear16"
	FormatMulaw    Format = "mulaw"
)

const (
	// GatewaySampleRate is the fixed rate of device-leg binary frames.
	GatewaySampleRate = 16000
	// UpstreamInputSampleRate is what the streaming backend expects on input.
	UpstreamInputSampleRate = 16000
	// UpstreamOutputSampleRate is what the streaming backend produces.
	UpstreamOutputSampleRate = 24000

	BytesPerSample = 2
)

// DecodeMulaw expands G.711 µ-law bytes to 16-bit LE PCM at the same rate.
func DecodeMulaw(data []byte) []byte {
	return g711.DecodeUlaw(data)
}

// EncodeMulaw compresses 16-bit LE PCM to G.711 µ-law at the same rate.
func EncodeMulaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}
