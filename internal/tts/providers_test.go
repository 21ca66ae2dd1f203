package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatterboxPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(testWAV())
	}))
	defer srv.Close()

	c := &Chatterbox{URL: srv.URL}
	speech, err := c.Synthesize(context.Background(), Request{Text: "hello", Voice: "austin", Speed: 1.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(speech.WAV) == 0 {
		t.Fatalf("no audio returned")
	}
	if got["voice_mode"] != "predefined" || got["predefined_voice_id"] != "Austin.wav" || got["output_format"] != "wav" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if _, ok := got["reference_audio_filename"]; ok {
		t.Fatalf("predefined voice must not send a reference file")
	}
	if got["chunk_size"].(float64) != 500 || got["seed"].(float64) != 1986 {
		t.Fatalf("unexpected generation params %+v", got)
	}
}

func TestChatterboxUnknownVoiceUsesClone(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write(testWAV())
	}))
	defer srv.Close()

	if _, err := (&Chatterbox{URL: srv.URL}).Synthesize(context.Background(), Request{Text: "x", Voice: "nobody"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got["voice_mode"] != "clone" || got["reference_audio_filename"] != "TimmyVoice.mp3" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestChatterboxFallsBackToDevURL(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	hits := 0
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(testWAV())
	}))
	defer dev.Close()

	c := &Chatterbox{URL: deadURL, DevURL: dev.URL, Logger: log.New(io.Discard, "", 0)}
	if _, err := c.Synthesize(context.Background(), Request{Text: "x", Voice: "timmy"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected dev url to be used once, got %d", hits)
	}
}

func TestChatterboxHTTPErrorIsNotRedirected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad text", http.StatusBadRequest)
	}))
	defer srv.Close()
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("dev url must not be called for HTTP errors")
	}))
	defer dev.Close()

	_, err := (&Chatterbox{URL: srv.URL, DevURL: dev.URL}).Synthesize(context.Background(), Request{Text: "x"})
	var se *SynthesisError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Retryable {
		t.Fatalf("expected non-retryable 400, got %v", err)
	}
}

func TestElevenLabsWrapsPCM(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" || r.URL.Query().Get("output_format") != "pcm_24000" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("xi-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		pcm := make([]byte, 8)
		for i, v := range []int16{0, 1000, -1000, 0} {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
		}
		w.Write(pcm)
	}))
	defer srv.Close()

	e := &ElevenLabs{BaseURL: srv.URL, APIKey: "secret"}
	speech, err := e.Synthesize(context.Background(), Request{Text: "hi", Voice: "voice-1", Style: "calm", Speed: 1.0})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech.WAV[:4]) != "RIFF" {
		t.Fatalf("expected a WAV container")
	}
	settings := body["voice_settings"].(map[string]any)
	if settings["stability"].(float64) != 0.75 || settings["use_speaker_boost"].(bool) {
		t.Fatalf("calm preset not applied: %+v", settings)
	}
	if body["model_id"] != defaultElevenLabsModel {
		t.Fatalf("unexpected model %v", body["model_id"])
	}
}

func TestElevenLabsRateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := (&ElevenLabs{BaseURL: srv.URL, APIKey: "k"}).Synthesize(context.Background(), Request{Text: "x", Voice: "v"})
	if !IsRetryable(err) {
		t.Fatalf("429 should be retryable, got %v", err)
	}
}

func TestElevenLabsRequiresKey(t *testing.T) {
	_, err := (&ElevenLabs{}).Synthesize(context.Background(), Request{Text: "x"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestOpenAISpeech(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(testWAV())
	}))
	defer srv.Close()

	o := NewOpenAISpeech(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	speech, err := o.Synthesize(context.Background(), Request{Text: "hello", Voice: "onyx", Speed: 1.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(speech.WAV) != len(testWAV()) {
		t.Fatalf("audio body not passed through")
	}
	if body["response_format"] != "wav" || body["voice"] != "onyx" || body["model"] != "tts-1" {
		t.Fatalf("unexpected request %+v", body)
	}
}
