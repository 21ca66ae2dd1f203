package tts

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/morningdrive/internal/audio"
)

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io"
	defaultElevenLabsModel = "eleven_multilingual_v2"
	elevenLabsRate         = 24000
)

// VoiceSettings are ElevenLabs delivery parameters. Lower stability is more
// expressive; higher style is more dramatic.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// StylePresets are keyed by the user's voice style. Unknown styles use energetic.
var StylePresets = map[string]VoiceSettings{
	"energetic":    {Stability: 0.35, SimilarityBoost: 0.75, Style: 0.65, SpeakerBoost: true},
	"professional": {Stability: 0.60, SimilarityBoost: 0.80, Style: 0.30, SpeakerBoost: true},
	"calm":         {Stability: 0.75, SimilarityBoost: 0.70, Style: 0.15, SpeakerBoost: false},
}

// ElevenLabs is the premium provider. Audio is requested as raw 24 kHz PCM and
// wrapped into WAV.
type ElevenLabs struct {
	BaseURL   string
	APIKey    string
	Model     string
	HostVoice string
	Client    *http.Client
}

var ErrMissingAPIKey = errors.New("elevenlabs api key is empty")

func (e *ElevenLabs) Name() string { return ProviderElevenLabs }

func (e *ElevenLabs) DefaultVoice() string {
	if e.HostVoice != "" {
		return e.HostVoice
	}
	return ElevenLabsProfiles["host"]
}

func (e *ElevenLabs) Profiles() map[string]string { return ElevenLabsProfiles }

func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (Speech, error) {
	if e.APIKey == "" {
		return Speech{}, &SynthesisError{Provider: ProviderElevenLabs, Err: ErrMissingAPIKey}
	}
	settings, ok := StylePresets[req.Style]
	if !ok {
		settings = StylePresets["energetic"]
	}
	settings.Speed = req.Speed
	model := e.Model
	if model == "" {
		model = defaultElevenLabsModel
	}
	base := e.BaseURL
	if base == "" {
		base = defaultElevenLabsURL
	}
	u := strings.TrimRight(base, "/") + "/v1/text-to-speech/" + url.PathEscape(req.Voice) + "?output_format=pcm_24000"
	body := map[string]any{
		"text":           req.Text,
		"model_id":       model,
		"voice_settings": settings,
	}
	pcm, err := postJSON(ctx, e.Client, ProviderElevenLabs, u, map[string]string{"xi-api-key": e.APIKey, "Accept": "audio/pcm"}, body)
	if err != nil {
		var se *SynthesisError
		if errors.As(err, &se) {
			return Speech{}, err
		}
		return Speech{}, &SynthesisError{Provider: ProviderElevenLabs, Retryable: true, Err: err}
	}
	wav, err := audio.EncodeWAVBytes(audio.DecodePCM16(pcm, elevenLabsRate))
	if err != nil {
		return Speech{}, &SynthesisError{Provider: ProviderElevenLabs, Err: err}
	}
	return Speech{WAV: wav}, nil
}
