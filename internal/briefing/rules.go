package briefing

// LengthMode selects how much content a briefing carries.
type LengthMode string

const (
	LengthShort LengthMode = "short"
	LengthLong  LengthMode = "long"
)

// GenerationRules are the content-volume and duration targets for one run.
type GenerationRules struct {
	Mode                  LengthMode
	NewsStoriesPerSource  int
	HistoryEventCount     int
	MarketMoversLimit     int // 0 means no limit
	SportsFavoritesOnly   bool
	TargetDurationMinutes int
	TargetWordCount       int
	DeepDiveCount         int
}

var lengthRules = map[LengthMode]GenerationRules{
	LengthShort: {
		Mode:                  LengthShort,
		NewsStoriesPerSource:  1,
		HistoryEventCount:     1,
		MarketMoversLimit:     1,
		SportsFavoritesOnly:   true,
		TargetDurationMinutes: 5,
		TargetWordCount:       1000,
		DeepDiveCount:         1,
	},
	LengthLong: {
		Mode:                  LengthLong,
		NewsStoriesPerSource:  2,
		HistoryEventCount:     2,
		MarketMoversLimit:     0,
		SportsFavoritesOnly:   false,
		TargetDurationMinutes: 10,
		TargetWordCount:       2000,
		DeepDiveCount:         2,
	},
}

// RulesFor returns the rules for mode. Unknown modes get the short rules.
func RulesFor(mode LengthMode) GenerationRules {
	if r, ok := lengthRules[mode]; ok {
		return r
	}
	return lengthRules[LengthShort]
}
