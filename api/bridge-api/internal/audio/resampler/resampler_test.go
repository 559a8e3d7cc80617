// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_audio_resampler

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samplesOf(t *testing.T, data []byte) []int16 {
	t.Helper()
	require.Zero(t, len(data)%2, "pcm buffer must be sample aligned")
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestResample_EmptyInput(t *testing.T) {
	out, err := Resample(nil, 24000, 16000)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResample_OddLengthInput(t *testing.T) {
	_, err := Resample([]byte{0x01, 0x02, 0x03}, 24000, 16000)
	require.Error(t, err)

	var malformed *MalformedAudioError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 3, malformed.Length)
}

func TestResample_SingleSamplePassThrough(t *testing.T) {
	in := pcm(1234)
	out, err := Resample(in, 24000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out, "fewer than 2 samples should pass through unchanged")
}

func TestResample_SameRateCopies(t *testing.T) {
	in := pcm(10, 20, 30)
	out, err := Resample(in, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Output must be a copy, not an alias.
	out[0] = 0xFF
	assert.Equal(t, pcm(10, 20, 30), in)
}

func TestResample_FirstSampleZeroOffset(t *testing.T) {
	out, err := Resample(pcm(1000, 2000), 24000, 16000)
	require.NoError(t, err)

	samples := samplesOf(t, out)
	require.NotEmpty(t, samples)
	assert.Equal(t, int16(1000), samples[0], "output index 0 has zero fractional offset")
}

func TestResample_OutputLength(t *testing.T) {
	tests := []struct {
		name       string
		inSamples  int
		sourceRate int
		targetRate int
		want       int
	}{
		{"downsample 24k to 16k", 240, 24000, 16000, 160},
		{"upsample 16k to 24k", 160, 16000, 24000, 240},
		{"downsample 16k to 8k", 320, 16000, 8000, 160},
		{"non divisible", 5, 24000, 16000, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]byte, tt.inSamples*2)
			out, err := Resample(in, tt.sourceRate, tt.targetRate)
			require.NoError(t, err)
			assert.Len(t, out, tt.want*2)
		})
	}
}

func TestResample_LinearInterpolation(t *testing.T) {
	// 16k -> 24k: output position 1 lands at source position 2/3, i.e.
	// between samples 0 and 1 with frac 2/3 -> 0*(1/3) + 3000*(2/3) = 2000.
	out, err := Resample(pcm(0, 3000, 6000), 16000, 24000)
	require.NoError(t, err)

	samples := samplesOf(t, out)
	require.Len(t, samples, 4)
	assert.Equal(t, int16(0), samples[0])
	assert.Equal(t, int16(2000), samples[1])
	assert.Equal(t, int16(4000), samples[2])
}

func TestResample_EdgeUsesFloorSample(t *testing.T) {
	// Last output index can point past the final input sample; the floor
	// neighbour alone must be used instead of reading out of range.
	out, err := Resample(pcm(100, 200, 300, 400), 16000, 24000)
	require.NoError(t, err)

	samples := samplesOf(t, out)
	require.Len(t, samples, 6)
	assert.Equal(t, int16(400), samples[5])
}

func TestResample_ClampsToInt16(t *testing.T) {
	out, err := Resample(pcm(32767, 32767, -32768, -32768), 16000, 24000)
	require.NoError(t, err)

	for _, s := range samplesOf(t, out) {
		assert.GreaterOrEqual(t, s, int16(-32768))
		assert.LessOrEqual(t, s, int16(32767))
	}
}

func TestResample_RoundTripDirectionGeneric(t *testing.T) {
	in := pcm(0, 1000, 2000, 3000, 4000, 5000)

	down, err := Resample(in, 24000, 16000)
	require.NoError(t, err)
	assert.Len(t, down, 4*2)

	up, err := Resample(down, 16000, 24000)
	require.NoError(t, err)
	assert.Len(t, up, 6*2)
}
