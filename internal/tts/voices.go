package tts

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// HostRole is the item voice that reads in the configured host voice.
const HostRole = "host"

var profileSplit = regexp.MustCompile(`[_\s-]+`)

// MatchVoice maps a demographic descriptor to a voice from profiles: an
// exact key first, then the key sharing the most words with the descriptor.
// Ties go to the alphabetically first key. def is returned when nothing
// scores above zero.
func MatchVoice(descriptor string, profiles map[string]string, def string) string {
	d := strings.ToLower(strings.TrimSpace(descriptor))
	if d == "" {
		return def
	}
	if v, ok := profiles[d]; ok {
		return v
	}
	want := make(map[string]bool)
	for _, w := range profileSplit.Split(d, -1) {
		if w != "" {
			want[w] = true
		}
	}
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestScore := def, 0
	for _, k := range keys {
		score := 0
		for _, w := range strings.Split(k, "_") {
			if want[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = profiles[k], score
		}
	}
	return best
}

// ResolveVoice picks the concrete voice for item. host is the run's host voice.
func ResolveVoice(item briefing.Item, host string, p Provider) string {
	if item.Voice == "" || item.Voice == HostRole {
		return host
	}
	return MatchVoice(item.VoiceProfile, p.Profiles(), host)
}

// HostVoice is the user's chosen voice, or the provider default when the
// user kept the generic "host" choice.
func HostVoice(configured string, p Provider) string {
	if configured == "" || configured == HostRole {
		return p.DefaultVoice()
	}
	return configured
}
