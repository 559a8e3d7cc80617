// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_upstream_google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	"github.com/voxbridgeai/pkg/commons"
)

const inputMimeType = "audio/pcm;rate=16000"

// liveDialer opens Gemini Live API connections satisfying the upstream
// Dialer contract, including session resumption handles.
type liveDialer struct {
	logger commons.Logger
	client *genai.Client
}

// NewLiveDialer builds the Gemini Live dialer from an API key.
func NewLiveDialer(ctx context.Context, logger commons.Logger, apiKey string) (internal_upstream.Dialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &liveDialer{logger: logger, client: client}, nil
}

func (d *liveDialer) Dial(ctx context.Context, cfg internal_upstream.ConnectConfig, resumptionToken string) (internal_upstream.Conn, error) {
	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		// Always request a resumption handle so the session can survive the
		// server-imposed connection lifetime.
		SessionResumption: &genai.SessionResumptionConfig{},
	}
	if cfg.OutputMode == internal_upstream.OutputModeText {
		connectCfg.ResponseModalities = []genai.Modality{genai.ModalityText}
	}
	if resumptionToken != "" {
		connectCfg.SessionResumption.Handle = resumptionToken
	}
	if cfg.SystemInstruction != "" {
		connectCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.Voice != "" {
		connectCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Temperature != nil {
		connectCfg.Temperature = cfg.Temperature
	}
	if cfg.EnableInputTranscription {
		connectCfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.EnableOutputTranscription {
		connectCfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, name := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{Name: name})
		}
		connectCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	session, err := d.client.Live.Connect(ctx, cfg.Model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to live api (model=%s): %w", cfg.Model, err)
	}
	d.logger.Debugf("live api connected: model=%s resumed=%v", cfg.Model, resumptionToken != "")

	return &liveConn{logger: d.logger, session: session}, nil
}

// liveConn adapts one *genai.Session to the upstream Conn contract.
type liveConn struct {
	logger  commons.Logger
	session *genai.Session

	mu    sync.Mutex
	token string
}

func (c *liveConn) SendAudio(ctx context.Context, chunk []byte) error {
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: chunk, MIMEType: inputMimeType},
	})
}

func (c *liveConn) SendAudioEnd(ctx context.Context) error {
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

func (c *liveConn) SendText(ctx context.Context, text string) error {
	return c.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: true,
	})
}

func (c *liveConn) SendToolResponse(ctx context.Context, results []internal_upstream.ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	return c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

// Receive drains the next server message and maps it onto an Event.
// Resumption-handle updates are captured here and never surfaced as events.
func (c *liveConn) Receive() (*internal_upstream.Event, error) {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			return nil, err
		}

		if msg.SessionResumptionUpdate != nil {
			if msg.SessionResumptionUpdate.Resumable && msg.SessionResumptionUpdate.NewHandle != "" {
				c.mu.Lock()
				c.token = msg.SessionResumptionUpdate.NewHandle
				c.mu.Unlock()
			}
			continue
		}

		event := &internal_upstream.Event{}
		populated := false

		if msg.GoAway != nil {
			event.GoAway = true
			populated = true
		}

		if sc := msg.ServerContent; sc != nil {
			if sc.ModelTurn != nil {
				for _, part := range sc.ModelTurn.Parts {
					if part.InlineData != nil && len(part.InlineData.Data) > 0 {
						event.Audio = append(event.Audio, part.InlineData.Data...)
						populated = true
					}
					if part.Text != "" {
						event.Text += part.Text
						populated = true
					}
				}
			}
			if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
				event.InputTranscript = sc.InputTranscription.Text
				event.TranscriptFinal = sc.InputTranscription.Finished
				populated = true
			}
			if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
				event.OutputTranscript = sc.OutputTranscription.Text
				event.TranscriptFinal = sc.OutputTranscription.Finished
				populated = true
			}
			if sc.TurnComplete {
				event.TurnComplete = true
				populated = true
			}
			if sc.Interrupted {
				event.Interrupted = true
				populated = true
			}
		}

		if tc := msg.ToolCall; tc != nil {
			for _, fc := range tc.FunctionCalls {
				event.ToolCalls = append(event.ToolCalls, internal_upstream.ToolCall{
					ID:   fc.ID,
					Name: fc.Name,
					Args: fc.Args,
				})
			}
			populated = populated || len(event.ToolCalls) > 0
		}

		if !populated {
			continue
		}
		return event, nil
	}
}

func (c *liveConn) ResumptionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *liveConn) Close() error {
	return c.session.Close()
}
