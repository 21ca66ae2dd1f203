package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI speech provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISpeech synthesizes through the OpenAI audio/speech endpoint.
type OpenAISpeech struct {
	client *openai.Client
	model  openai.SpeechModel
}

func NewOpenAISpeech(cfg OpenAIConfig, httpClient *http.Client) *OpenAISpeech {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = clientOrDefault(httpClient)
	model := openai.SpeechModel(cfg.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	return &OpenAISpeech{client: openai.NewClientWithConfig(oc), model: model}
}

func (o *OpenAISpeech) Name() string                { return ProviderOpenAI }
func (o *OpenAISpeech) DefaultVoice() string        { return OpenAIProfiles["host"] }
func (o *OpenAISpeech) Profiles() map[string]string { return OpenAIProfiles }

func (o *OpenAISpeech) Synthesize(ctx context.Context, req Request) (Speech, error) {
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          speed,
	})
	if err != nil {
		return Speech{}, openAIError(err)
	}
	defer resp.Close()
	data, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes))
	if err != nil {
		return Speech{}, &SynthesisError{Provider: ProviderOpenAI, Retryable: true, Err: fmt.Errorf("read audio: %w", err)}
	}
	return Speech{WAV: data}, nil
}

func openAIError(err error) error {
	se := &SynthesisError{Provider: ProviderOpenAI, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		se.Code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		se.Code = reqErr.HTTPStatusCode
	}
	se.Retryable = se.Code == 0 || se.Code == http.StatusTooManyRequests || se.Code >= 500
	return se
}
