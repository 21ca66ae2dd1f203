package tts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/audio"
	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
)

const (
	DefaultThrottle = 100 * time.Millisecond
	previewChars    = 50
)

// VoiceConfig is the per-run voice selection.
type VoiceConfig struct {
	Provider string
	VoiceID  string
	Style    string
	Speed    float64
}

// VoiceConfigFrom reads the voice selection out of user settings.
func VoiceConfigFrom(u briefing.UserSettings) VoiceConfig {
	return VoiceConfig{Provider: u.TTSProvider, VoiceID: u.VoiceID, Style: u.VoiceStyle, Speed: u.VoiceSpeed}
}

// ItemError is a script item that produced no audio.
type ItemError struct {
	SegmentType  briefing.SegmentType
	SegmentIndex int
	ItemIndex    int
	TextPreview  string
	Err          error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s segment %d item %d (%q): %v", e.SegmentType, e.SegmentIndex, e.ItemIndex, e.TextPreview, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// SpokenClip is the audio for one item.
type SpokenClip struct {
	SegmentType  briefing.SegmentType
	SegmentIndex int
	ItemIndex    int
	Voice        string
	CacheKey     string
	Cached       bool
	Clip         *audio.Clip
}

// Result is the outcome of one Synthesize call. Clips are in script order.
type Result struct {
	Clips    []SpokenClip
	Errors   []*ItemError
	Expected []briefing.SegmentType
	Actual   []briefing.SegmentType
}

// MissingTypes are the expected segment types that produced no clip.
func (r *Result) MissingTypes() []briefing.SegmentType {
	have := make(map[briefing.SegmentType]bool, len(r.Actual))
	for _, t := range r.Actual {
		have[t] = true
	}
	var out []briefing.SegmentType
	for _, t := range r.Expected {
		if !have[t] {
			out = append(out, t)
		}
	}
	return out
}

func (r *Result) Complete() bool { return len(r.MissingTypes()) == 0 }

// Tracks converts the clips into mixer input.
func (r *Result) Tracks() []audio.Track {
	out := make([]audio.Track, 0, len(r.Clips))
	for _, c := range r.Clips {
		out = append(out, audio.Track{Type: c.SegmentType, Clip: c.Clip})
	}
	return out
}

// Synthesizer renders scripts item by item, in order, through one provider.
type Synthesizer struct {
	Providers Registry
	Cache     Cache
	// Throttle is the pause before each backend call after the first.
	Throttle time.Duration
	// Retries bounds extra attempts for retryable provider errors.
	Retries int
	Logger  *log.Logger
}

func NewSynthesizer(providers Registry, cache Cache, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{Providers: providers, Cache: cache, Throttle: DefaultThrottle, Logger: logger}
}

func (s *Synthesizer) warn(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf("warn: "+format, args...)
	}
}

// Synthesize produces one clip per non-empty item. Item failures are collected
// and the loop continues; only an unknown provider or a cancelled context
// returns an error.
func (s *Synthesizer) Synthesize(ctx context.Context, script *briefing.Script, vc VoiceConfig) (*Result, error) {
	p, err := s.Providers.Get(vc.Provider)
	if err != nil {
		return nil, err
	}
	host := HostVoice(vc.VoiceID, p)
	res := &Result{Expected: script.SegmentTypes()}
	seen := make(map[briefing.SegmentType]bool)
	calls := 0

	for si, seg := range script.Segments {
		for ii, item := range seg.Items {
			if strings.TrimSpace(item.Text) == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			text := helpers.SpeakableText(item.Text)
			voice := ResolveVoice(item, host, p)
			key := CacheKey(text, voice, vc.Style, vc.Speed, p.Name())

			clip, cached, err := s.cached(ctx, key)
			if err == nil && clip == nil {
				if calls > 0 {
					if err := s.pause(ctx); err != nil {
						return res, err
					}
				}
				calls++
				clip, err = s.render(ctx, p, Request{Text: text, Voice: voice, Style: vc.Style, Speed: vc.Speed}, key)
			}
			countCache(ctx, cached, p.Name())
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				countFailure(ctx, p.Name())
				ie := &ItemError{
					SegmentType:  seg.Type,
					SegmentIndex: si,
					ItemIndex:    ii,
					TextPreview:  helpers.Preview(item.Text, previewChars),
					Err:          err,
				}
				s.warn("tts %v", ie)
				res.Errors = append(res.Errors, ie)
				continue
			}
			res.Clips = append(res.Clips, SpokenClip{
				SegmentType:  seg.Type,
				SegmentIndex: si,
				ItemIndex:    ii,
				Voice:        voice,
				CacheKey:     key,
				Cached:       cached,
				Clip:         clip,
			})
			if !seen[seg.Type] {
				seen[seg.Type] = true
				res.Actual = append(res.Actual, seg.Type)
			}
		}
	}
	return res, nil
}

// cached returns a decoded cache entry, or nil when there is none. Unreadable
// entries are treated as misses.
func (s *Synthesizer) cached(ctx context.Context, key string) (*audio.Clip, bool, error) {
	if s.Cache == nil {
		return nil, false, nil
	}
	wav, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		s.warn("tts cache get %s: %v", key[:12], err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	clip, err := audio.DecodeWAVBytes(wav)
	if err != nil {
		s.warn("tts cache entry %s unreadable: %v", key[:12], err)
		return nil, false, nil
	}
	return clip, true, nil
}

func (s *Synthesizer) render(ctx context.Context, p Provider, req Request, key string) (*audio.Clip, error) {
	var speech Speech
	var err error
	for attempt := 0; ; attempt++ {
		speech, err = p.Synthesize(ctx, req)
		if err == nil || attempt >= s.Retries || !IsRetryable(err) || ctx.Err() != nil {
			break
		}
		s.warn("tts %s attempt %d failed: %v", p.Name(), attempt+1, err)
		if perr := s.pause(ctx); perr != nil {
			return nil, perr
		}
	}
	if err != nil {
		return nil, err
	}
	clip, err := audio.DecodeWAVBytes(speech.WAV)
	if err != nil {
		return nil, &SynthesisError{Provider: p.Name(), Err: fmt.Errorf("decode audio: %w", err)}
	}
	if s.Cache != nil {
		if err := s.Cache.Put(ctx, key, speech.WAV); err != nil {
			s.warn("tts cache put %s: %v", key[:12], err)
		}
	}
	return clip, nil
}

func (s *Synthesizer) pause(ctx context.Context) error {
	if s.Throttle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Throttle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
