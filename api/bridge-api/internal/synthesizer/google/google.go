// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_synthesizer_google

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	internal_audio "github.com/voxbridgeai/api/bridge-api/internal/audio"
	internal_synthesizer "github.com/voxbridgeai/api/bridge-api/internal/synthesizer"
	"github.com/voxbridgeai/pkg/commons"
)

// Introduced constants for default values
const (
	DefaultLanguageCode = "en-US"
	DefaultVoice        = "en-US-Chirp-HD-F"
)

type googleSynthesizer struct {
	logger commons.Logger
	client *texttospeech.Client
}

// NewGoogleSynthesizer builds the Google Cloud TTS backed synthesizer.
func NewGoogleSynthesizer(ctx context.Context, logger commons.Logger, apiKey string) (internal_synthesizer.Synthesizer, error) {
	opts := make([]option.ClientOption, 0, 1)
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create texttospeech client: %w", err)
	}
	return &googleSynthesizer{logger: logger, client: client}, nil
}

func (g *googleSynthesizer) Synthesize(ctx context.Context, text string, cfg internal_synthesizer.SpeechConfig) ([]byte, error) {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
		g.logger.Warn("Voice not specified, defaulting to " + DefaultVoice)
	}
	language := cfg.LanguageCode
	if language == "" {
		language = DefaultLanguageCode
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = internal_audio.UpstreamOutputSampleRate
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			// PCM is headerless; LINEAR16 would prepend a WAV container that
			// the resampler would read as samples.
			AudioEncoding:   texttospeechpb.AudioEncoding_PCM,
			SampleRateHertz: int32(rate),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize %d chars: %w", len(text), err)
	}
	return stripRIFFHeader(resp.AudioContent), nil
}

// stripRIFFHeader drops the 44-byte WAV container when present, so callers
// always receive raw 16-bit samples.
func stripRIFFHeader(data []byte) []byte {
	if len(data) < 44 {
		return data
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}
	return data[44:]
}
