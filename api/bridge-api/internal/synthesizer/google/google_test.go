// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_synthesizer_google

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// wavContainer wraps raw samples in a minimal 44-byte RIFF header, the shape
// the texttospeech LINEAR16 encoding produces.
func wavContainer(samples []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(24000))
	binary.Write(&buf, binary.LittleEndian, uint32(24000*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

func TestStripRIFFHeader(t *testing.T) {
	samples := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	out := stripRIFFHeader(wavContainer(samples))
	assert.Equal(t, samples, out, "container bytes must not reach the audio path")
	assert.NotContains(t, string(out), "RIFF")
}

func TestStripRIFFHeader_RawPCMUntouched(t *testing.T) {
	// Headerless buffers pass through unchanged, including ones that are
	// shorter than a header could be.
	raw := make([]byte, 96)
	raw[0] = 0x7F
	assert.Equal(t, raw, stripRIFFHeader(raw))

	short := []byte{0x01, 0x02}
	assert.Equal(t, short, stripRIFFHeader(short))

	assert.Empty(t, stripRIFFHeader(nil))
}
