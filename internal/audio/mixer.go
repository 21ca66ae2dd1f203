package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// Levels in dBFS used when assembling a briefing.
const (
	SpeechDBFS     = -18.0
	JingleDBFS     = -22.0
	StingDBFS      = -23.0
	TransitionDBFS = -25.0
	MusicDBFS      = -20.0
	FinalDBFS      = -16.0

	CompressThreshold = -20.0
	CompressRatio     = 4.0
)

// Gaps and fades in milliseconds.
const (
	SegmentGapMS   = 300
	SectionGapMS   = 1000
	LeadSilenceMS  = 500
	IntroTailMS    = 300
	TransitionTail = 200
	StingTailMS    = 300
	MusicLeadGapMS = 500
	MusicFadeInMS  = 2000
	MusicFadeOutMS = 3000
	TrailSilenceMS = 1000
	IntroFadeInMS  = 300
	IntroFadeOutMS = 200
	OutroFadeInMS  = 200
	OutroFadeOutMS = 500
)

const (
	ContentTypeWAV  = "audio/wav"
	MusicNotFound   = "File not found"
	artifactsPrefix = "briefings/"
)

// stingTypes are the segments that get a sting when transitions are on.
var stingTypes = []briefing.SegmentType{
	briefing.SegmentNews, briefing.SegmentSports, briefing.SegmentWeather, briefing.SegmentFun,
}

// Uploader stores the finished artifact.
type Uploader interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Track is one spoken clip in script order.
type Track struct {
	Type briefing.SegmentType
	Clip *Clip
}

// AssembleRequest describes one mix.
type AssembleRequest struct {
	BriefingID         string
	Tracks             []Track
	IncludeIntro       bool
	IncludeTransitions bool
	// MusicPath is a local WAV file; empty means no music.
	MusicPath string
	// TempDir receives the exported file. The caller owns its cleanup.
	TempDir string
}

// AssembleResult is the uploaded artifact.
type AssembleResult struct {
	Key             string
	DurationSeconds float64
	Timeline        briefing.Timeline
}

// Mixer concatenates speech with jingles, stings, transitions and music.
type Mixer struct {
	Assets     *Library
	Store      Uploader
	SampleRate int
	Logger     *log.Logger
}

func (m *Mixer) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

func (m *Mixer) rate() int {
	if m.SampleRate > 0 {
		return m.SampleRate
	}
	return DefaultSampleRate
}

// asset loads a named asset at the mix rate, normalised to level, or nil.
func (m *Mixer) asset(name string, level float64) *Clip {
	c := m.Assets.Load(name)
	if c == nil {
		return nil
	}
	if c.SampleRate != m.rate() {
		c = c.Resample(m.rate())
	}
	return c.Normalize(level)
}

// timeline tracks section boundaries in samples so they only move forward.
type timeline struct {
	rate    int
	entries []briefing.TimelineEntry
	current briefing.SegmentType
	started bool
}

func (t *timeline) seconds(n int) float64 { return float64(n) / float64(t.rate) }

func (t *timeline) open(typ briefing.SegmentType, at int) {
	t.entries = append(t.entries, briefing.TimelineEntry{
		Type:      typ,
		StartTime: t.seconds(at),
		EndTime:   t.seconds(at),
		Title:     typ.Title(),
	})
	t.current = typ
	t.started = true
}

func (t *timeline) extend(at int) {
	if len(t.entries) == 0 {
		return
	}
	if end := t.seconds(at); end > t.entries[len(t.entries)-1].EndTime {
		t.entries[len(t.entries)-1].EndTime = end
	}
}

// Mix builds the track in memory without exporting it.
//
// Timeline entries cover speech only, except the music entry: the piece is
// appended after the last spoken segment, so the music entry's EndTime is
// pushed to the end of the piece and may lie past the entries that follow it.
func (m *Mixer) Mix(req AssembleRequest) (*Clip, briefing.Timeline) {
	rate := m.rate()
	out := &Clip{SampleRate: rate}
	silence := func(ms int) { out.Append(Silence(ms, rate)) }

	var intro, outro *Clip
	if req.IncludeIntro {
		intro = m.asset(IntroJingle, JingleDBFS)
		outro = m.asset(OutroJingle, JingleDBFS)
	}
	if intro != nil {
		intro.FadeIn(IntroFadeInMS).FadeOut(IntroFadeOutMS)
		out.Append(intro)
		silence(IntroTailMS)
	} else {
		silence(LeadSilenceMS)
	}

	var whoosh *Clip
	stings := make(map[briefing.SegmentType]*Clip)
	if req.IncludeTransitions {
		whoosh = m.asset(TransitionWhoosh, TransitionDBFS)
		for _, t := range stingTypes {
			if s := m.asset(StingFile(t), StingDBFS); s != nil {
				stings[t] = s
			}
		}
	}

	tl := &timeline{rate: rate}
	for _, tr := range req.Tracks {
		if tr.Clip.Len() == 0 {
			continue
		}
		speech := tr.Clip.Resample(rate).Normalize(SpeechDBFS).Compress(CompressThreshold, CompressRatio)

		if !tl.started || tr.Type != tl.current {
			if tl.started {
				silence(SectionGapMS)
				if whoosh != nil {
					out.Append(whoosh)
					silence(TransitionTail)
				}
			}
			tl.open(tr.Type, out.Len())
			if s, ok := stings[tr.Type]; ok {
				out.Append(s)
				silence(StingTailMS)
			}
		} else {
			silence(SegmentGapMS)
		}
		out.Append(speech)
		tl.extend(out.Len())
	}

	result := briefing.Timeline{}
	if req.MusicPath != "" {
		music, err := m.loadMusic(req.MusicPath)
		switch {
		case err != nil:
			result.MusicError = err.Error()
			m.logf("warn: music not added: %v", err)
		default:
			music.Normalize(MusicDBFS).FadeIn(MusicFadeInMS).FadeOut(MusicFadeOutMS)
			silence(MusicLeadGapMS)
			out.Append(music)
			end := tl.seconds(out.Len())
			for i := range tl.entries {
				if tl.entries[i].Type == briefing.SegmentMusic && end > tl.entries[i].EndTime {
					tl.entries[i].EndTime = end
				}
			}
			result.MusicAdded = true
			result.MusicDuration = music.Seconds()
		}
	}

	if outro != nil {
		outro.FadeIn(OutroFadeInMS).FadeOut(OutroFadeOutMS)
		silence(SectionGapMS)
		out.Append(outro)
	} else {
		silence(TrailSilenceMS)
	}

	out.Normalize(FinalDBFS)
	result.Segments = tl.entries
	if result.Segments == nil {
		result.Segments = []briefing.TimelineEntry{}
	}
	return out, result
}

func (m *Mixer) loadMusic(path string) (*Clip, error) {
	c, err := DecodeWAVFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(MusicNotFound)
		}
		return nil, err
	}
	if c.Len() == 0 {
		return nil, errors.New("music file is empty")
	}
	return c.Resample(m.rate()), nil
}

// Assemble mixes req, exports the WAV into req.TempDir and uploads it under a
// fresh run-scoped key.
func (m *Mixer) Assemble(ctx context.Context, req AssembleRequest) (AssembleResult, error) {
	if m.Store == nil {
		return AssembleResult{}, errors.New("mixer has no object store")
	}
	track, tl := m.Mix(req)

	dir := req.TempDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "morningdrive-mix-")
		if err != nil {
			return AssembleResult{}, fmt.Errorf("temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	path := filepath.Join(dir, fmt.Sprintf("final_briefing_%s.wav", req.BriefingID))
	if err := EncodeWAVFile(path, track); err != nil {
		return AssembleResult{}, fmt.Errorf("export briefing audio: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return AssembleResult{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return AssembleResult{}, err
	}
	key := ArtifactKey(req.BriefingID)
	if err := m.Store.Put(ctx, key, f, info.Size(), ContentTypeWAV); err != nil {
		return AssembleResult{}, fmt.Errorf("upload briefing audio: %w", err)
	}
	m.logf("briefing %s: uploaded %s (%.1fs, %d sections)", req.BriefingID, key, track.Seconds(), len(tl.Segments))
	return AssembleResult{Key: key, DurationSeconds: track.Seconds(), Timeline: tl}, nil
}

// ArtifactKey is a fresh object key for a briefing's audio.
func ArtifactKey(briefingID string) string {
	return fmt.Sprintf("%sbriefing_%s_%s.wav", artifactsPrefix, briefingID, uuid.NewString()[:8])
}
