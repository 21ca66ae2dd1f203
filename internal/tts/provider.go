// Package tts turns script items into speech clips through pluggable
// providers, with a content-addressed cache in front of them.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Provider names.
const (
	ProviderChatterbox = "chatterbox"
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
)

// Request is one synthesis call.
type Request struct {
	Text  string
	Voice string
	Style string
	Speed float64
}

// Speech is a provider response: a complete WAV file.
type Speech struct {
	WAV []byte
}

// Provider is one TTS backend.
type Provider interface {
	Name() string
	// DefaultVoice is the host voice when a user has not chosen one.
	DefaultVoice() string
	// Profiles maps demographic descriptors (male_american_40s) to voices.
	Profiles() map[string]string
	Synthesize(ctx context.Context, req Request) (Speech, error)
}

var ErrUnknownProvider = errors.New("unknown tts provider")

// SynthesisError is a failed provider call.
type SynthesisError struct {
	Provider  string
	Code      int
	Retryable bool
	Err       error
}

func (e *SynthesisError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se) && se.Retryable
}

func statusError(provider string, code int, body string) error {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Retryable: code == http.StatusTooManyRequests || code >= 500,
		Err:       errors.New(body),
	}
}

// Registry holds the configured providers by name.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		if p != nil {
			r[p.Name()] = p
		}
	}
	return r
}

func (r Registry) Get(name string) (Provider, error) {
	if p, ok := r[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}
