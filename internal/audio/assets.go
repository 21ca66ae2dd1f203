package audio

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// Asset file names inside the assets directory.
const (
	IntroJingle      = "intro_jingle.wav"
	OutroJingle      = "outro_jingle.wav"
	TransitionWhoosh = "transition_whoosh.wav"
)

// StingFile is the per-segment sting for t, e.g. "news_sting.wav".
func StingFile(t briefing.SegmentType) string {
	return string(t) + "_sting.wav"
}

// Library loads optional production assets from a directory. A missing or
// unreadable asset is reported as absent and never as an error.
type Library struct {
	Dir    string
	Logger *log.Logger

	mu    sync.Mutex
	cache map[string]*Clip
}

func NewLibrary(dir string, logger *log.Logger) *Library {
	return &Library{Dir: dir, Logger: logger}
}

// Load returns a copy of the named asset, or nil when it is not available.
func (l *Library) Load(name string) *Clip {
	if l == nil || l.Dir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache == nil {
		l.cache = make(map[string]*Clip)
	}
	if c, ok := l.cache[name]; ok {
		if c == nil {
			return nil
		}
		return c.Clone()
	}
	c, err := DecodeWAVFile(filepath.Join(l.Dir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && l.Logger != nil {
			l.Logger.Printf("warn: asset %s unreadable, skipping: %v", name, err)
		}
		l.cache[name] = nil
		return nil
	}
	l.cache[name] = c
	return c.Clone()
}

// Exists reports whether the asset file is present.
func (l *Library) Exists(name string) bool {
	if l == nil || l.Dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(l.Dir, name))
	return err == nil
}
