package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// Bounds enforced by the speech endpoint.
const (
	MaxSpeechInput = 4096
	MinSpeechSpeed = 0.25
	MaxSpeechSpeed = 4.0
)

// SpeechRequest describes a text-to-speech synthesis request.
type SpeechRequest struct {
	Model  string // "tts-1" when empty
	Voice  string // "alloy" when empty
	Input  string
	Speed  float64 // 0 means server default
	Format string  // "mp3" when empty
}

// Speech synthesizes audio for the given text and returns the binary
// payload. Input length and speed are validated against the endpoint's
// bounds before anything is sent.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("speech input is empty")
	}
	if len(req.Input) > MaxSpeechInput {
		return nil, fmt.Errorf("speech input exceeds %d characters", MaxSpeechInput)
	}
	if req.Speed != 0 && (req.Speed < MinSpeechSpeed || req.Speed > MaxSpeechSpeed) {
		return nil, fmt.Errorf("speech speed %g outside [%g, %g]", req.Speed, MinSpeechSpeed, MaxSpeechSpeed)
	}

	model := req.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := req.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	format := req.Format
	if format == "" {
		format = string(openai.SpeechResponseFormatMp3)
	}

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          req.Input,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio payload: %w", err)
	}
	return audio, nil
}
