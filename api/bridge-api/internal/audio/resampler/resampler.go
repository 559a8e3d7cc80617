// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_audio_resampler

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MalformedAudioError reports a PCM buffer whose length is not a whole number
// of 16-bit samples. The offending frame is rejected; the connection carrying
// it must not be torn down.
type MalformedAudioError struct {
	Length int
}

func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("malformed pcm buffer: %d bytes is not a multiple of 2", e.Length)
}

// Resample converts 16-bit little-endian mono PCM between sample rates using
// linear interpolation. It is direction-generic: the same function serves
// both the 24000→16000 downlink and any uplink adaptation.
//
// Contract:
//   - empty input yields empty output
//   - odd-length input yields *MalformedAudioError
//   - fewer than 2 samples pass through unchanged
//   - output length is floor(inCount * targetRate / sourceRate) samples
func Resample(data []byte, sourceRate, targetRate int) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if len(data)%2 != 0 {
		return nil, &MalformedAudioError{Length: len(data)}
	}
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: source=%d target=%d", sourceRate, targetRate)
	}
	if sourceRate == targetRate {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	inCount := len(data) / 2
	if inCount < 2 {
		// Not enough data to interpolate.
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	samples := make([]int16, inCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	outCount := inCount * targetRate / sourceRate
	ratio := float64(sourceRate) / float64(targetRate)
	out := make([]byte, outCount*2)

	for i := 0; i < outCount; i++ {
		pos := float64(i) * ratio
		lo := int(math.Floor(pos))
		hi := lo + 1
		frac := pos - float64(lo)

		var v float64
		if hi >= inCount {
			v = float64(samples[lo])
		} else {
			v = float64(samples[lo])*(1-frac) + float64(samples[hi])*frac
		}

		s := int(math.Round(v))
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out, nil
}
