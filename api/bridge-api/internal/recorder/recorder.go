// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.
package internal_recorder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	internal_audio "github.com/voxbridgeai/api/bridge-api/internal/audio"
	"github.com/voxbridgeai/pkg/commons"
)

const (
	wavBitsPerSample = 16
	wavPCMFormat     = 1
	wavChannels      = 1
)

const (
	trackCaller    = 0
	trackAssistant = 1
)

// Recorder captures both legs of a call onto a shared timeline and renders
// them as two WAV files. All audio must already be at the gateway sample
// rate; the handler downsamples assistant audio before it reaches both the
// gateway and the recorder.
type Recorder interface {
	// Start anchors the timeline. Record calls before Start are placed at
	// offset zero.
	Start()
	RecordCaller(pcm []byte)
	RecordAssistant(pcm []byte)
	// Persist renders the caller and assistant WAVs spanning the full call.
	Persist() (callerWAV, assistantWAV []byte, err error)
}

// timelineChunk is one audio fragment at a byte position relative to Start.
type timelineChunk struct {
	offset int
	data   []byte
	track  int
}

type callRecorder struct {
	logger commons.Logger

	mu        sync.Mutex
	startTime time.Time
	started   bool
	chunks    []timelineChunk
	// Per-track write cursor, one byte past the last written byte. The
	// caller track is placed by wall clock since the gateway delivers at
	// real-time rate. The assistant track arrives in bursts faster than
	// real time, so continuation chunks are paced from the cursor and only
	// the first chunk after a gap anchors at wall clock. Wall-clock
	// placement of every burst chunk caused audible gaps between chunks.
	cursor [2]int

	clock func() time.Time
}

func NewCallRecorder(logger commons.Logger) Recorder {
	return &callRecorder{logger: logger, clock: time.Now}
}

func (r *callRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = r.clock()
	r.started = true
}

func bytesPerSecond() int {
	return internal_audio.GatewaySampleRate * wavChannels * internal_audio.BytesPerSample
}

// durationBytes converts a wall-clock duration to a sample-aligned byte count.
func durationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(bytesPerSecond()))
	frame := internal_audio.BytesPerSample * wavChannels
	return (raw / frame) * frame
}

func (r *callRecorder) RecordCaller(pcm []byte) {
	r.push(pcm, trackCaller)
}

func (r *callRecorder) RecordAssistant(pcm []byte) {
	r.push(pcm, trackAssistant)
}

func (r *callRecorder) push(data []byte, track int) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wallOffset := 0
	if r.started {
		wallOffset = durationBytes(r.clock().Sub(r.startTime))
	}

	offset := wallOffset
	switch track {
	case trackCaller:
		if r.cursor[track] > offset {
			offset = r.cursor[track]
		}
	case trackAssistant:
		if r.cursor[track] > wallOffset {
			// Burst continuation, pace from the cursor.
			offset = r.cursor[track]
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	r.chunks = append(r.chunks, timelineChunk{offset: offset, data: buf, track: track})
	r.cursor[track] = offset + len(buf)
}

func (r *callRecorder) Persist() ([]byte, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return nil, nil, fmt.Errorf("no audio recorded")
	}

	totalLen := 0
	if r.started {
		totalLen = durationBytes(r.clock().Sub(r.startTime))
	}
	for _, c := range r.chunks {
		if end := c.offset + len(c.data); end > totalLen {
			totalLen = end
		}
	}

	// Zero bytes are silence, so gaps between chunks stay quiet.
	callerPCM := make([]byte, totalLen)
	assistantPCM := make([]byte, totalLen)

	callerBytes, assistantBytes := 0, 0
	for _, c := range r.chunks {
		if c.track == trackCaller {
			copy(callerPCM[c.offset:], c.data)
			callerBytes += len(c.data)
		} else {
			copy(assistantPCM[c.offset:], c.data)
			assistantBytes += len(c.data)
		}
	}

	r.logger.Infof("call recording persisted: caller=%.2fs assistant=%.2fs total=%.2fs chunks=%d",
		float64(callerBytes)/float64(bytesPerSecond()),
		float64(assistantBytes)/float64(bytesPerSecond()),
		float64(totalLen)/float64(bytesPerSecond()),
		len(r.chunks))

	return wavFile(callerPCM), wavFile(assistantPCM), nil
}

// SaveTo persists both tracks under dir and returns the caller-track path.
func SaveTo(rec Recorder, dir, callID string) (string, error) {
	callerWAV, assistantWAV, err := rec.Persist()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording dir %s: %w", dir, err)
	}

	callerPath := filepath.Join(dir, callID+".caller.wav")
	if err := os.WriteFile(callerPath, callerWAV, 0o644); err != nil {
		return "", fmt.Errorf("failed to write caller recording: %w", err)
	}
	assistantPath := filepath.Join(dir, callID+".assistant.wav")
	if err := os.WriteFile(assistantPath, assistantWAV, 0o644); err != nil {
		return "", fmt.Errorf("failed to write assistant recording: %w", err)
	}
	return callerPath, nil
}

func wavFile(pcm []byte) []byte {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(wavChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(internal_audio.GatewaySampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(internal_audio.BytesPerSample*wavChannels))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
