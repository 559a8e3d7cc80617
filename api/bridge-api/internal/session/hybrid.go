// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_session

import (
	"context"

	internal_audio "github.com/voxbridgeai/api/bridge-api/internal/audio"
	internal_synthesizer "github.com/voxbridgeai/api/bridge-api/internal/synthesizer"
	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
)

// Hybrid wraps a text-output session and attaches synthesized audio to every
// response that carries text but no audio. When synthesis fails the text-only
// event is still emitted so the caller can decide how to degrade.
type Hybrid struct {
	*Session

	logger commons.Logger
	synth  internal_synthesizer.Synthesizer
	events chan *internal_upstream.Event
}

// NewHybrid decorates an already-constructed text-output session. The
// synthesis pump starts immediately and stops with the inner session.
func NewHybrid(logger commons.Logger, inner *Session, synth internal_synthesizer.Synthesizer) *Hybrid {
	h := &Hybrid{
		Session: inner,
		logger:  logger,
		synth:   synth,
		events:  make(chan *internal_upstream.Event, eventChannelSize),
	}
	go h.run()
	return h
}

func (h *Hybrid) Receive() <-chan *internal_upstream.Event {
	return h.events
}

func (h *Hybrid) run() {
	for {
		select {
		case ev, ok := <-h.Session.Receive():
			if !ok {
				return
			}
			h.forward(ev)
		case <-h.Session.Done():
			return
		}
	}
}

func (h *Hybrid) forward(ev *internal_upstream.Event) {
	if ev.Text != "" && len(ev.Audio) == 0 {
		audio, err := h.synth.Synthesize(context.Background(), ev.Text, internal_synthesizer.SpeechConfig{
			Voice:      h.config.Voice,
			SampleRate: internal_audio.UpstreamOutputSampleRate,
		})
		if err != nil {
			// Never drop the response; the text still reaches the caller.
			h.logger.Warnw("hybrid synthesis failed, emitting text-only response",
				"session_id", h.ID(), "error", err.Error())
		} else {
			ev.Audio = audio
			h.bytesReceived.Add(uint64(len(audio)))
		}
	}

	select {
	case h.events <- ev:
	case <-h.Session.Done():
	}
}
