package tts

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Chatterbox is the free self-hosted provider. When URL cannot be reached the
// request is repeated once against DevURL (the host-side address used outside
// containers).
type Chatterbox struct {
	URL    string
	DevURL string
	Client *http.Client
	Logger *log.Logger
}

type chatterboxRequest struct {
	Text         string  `json:"text"`
	VoiceMode    string  `json:"voice_mode"`
	OutputFormat string  `json:"output_format"`
	SplitText    bool    `json:"split_text"`
	ChunkSize    int     `json:"chunk_size"`
	Temperature  float64 `json:"temperature"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Seed         int     `json:"seed"`
	Speed        float64 `json:"speed_factor,omitempty"`
	Reference    string  `json:"reference_audio_filename,omitempty"`
	Predefined   string  `json:"predefined_voice_id,omitempty"`
}

func (c *Chatterbox) Name() string                { return ProviderChatterbox }
func (c *Chatterbox) DefaultVoice() string        { return DefaultChatterboxVoice }
func (c *Chatterbox) Profiles() map[string]string { return ChatterboxProfiles }

func (c *Chatterbox) Synthesize(ctx context.Context, req Request) (Speech, error) {
	voice, ok := ChatterboxVoices[strings.ToLower(req.Voice)]
	if !ok {
		voice = ChatterboxVoices[DefaultChatterboxVoice]
	}
	body := chatterboxRequest{
		Text:         req.Text,
		VoiceMode:    voice.Mode,
		OutputFormat: "wav",
		SplitText:    true,
		ChunkSize:    500,
		Temperature:  0.7,
		Exaggeration: 0.7,
		CFGWeight:    0.5,
		Seed:         1986,
		Speed:        req.Speed,
	}
	if voice.Mode == "clone" {
		body.Reference = voice.Reference
	} else {
		body.Predefined = voice.Predefined
	}

	data, err := postJSON(ctx, c.Client, ProviderChatterbox, strings.TrimRight(c.URL, "/")+"/tts", nil, body)
	if err != nil && c.DevURL != "" && c.DevURL != c.URL && isConnectError(err) {
		if c.Logger != nil {
			c.Logger.Printf("warn: chatterbox unreachable at %s, trying %s", c.URL, c.DevURL)
		}
		data, err = postJSON(ctx, c.Client, ProviderChatterbox, strings.TrimRight(c.DevURL, "/")+"/tts", nil, body)
	}
	if err != nil {
		var se *SynthesisError
		if errors.As(err, &se) {
			return Speech{}, err
		}
		return Speech{}, &SynthesisError{Provider: ProviderChatterbox, Retryable: true, Err: err}
	}
	return Speech{WAV: data}, nil
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		return errors.As(urlErr.Err, &dnsErr)
	}
	return false
}
