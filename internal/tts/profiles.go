package tts

// ElevenLabs stock voices.
const (
	elevenRachel = "21m00Tcm4TlvDq8ikWAM"
	elevenAdam   = "pNInz6obpgDQGcFmaJgB"
	elevenArnold = "VR6AewLTigWG4xSOukaG"
)

// ElevenLabsProfiles maps demographic descriptors to ElevenLabs voice ids.
var ElevenLabsProfiles = map[string]string{
	"host": elevenRachel,

	"male_american":       elevenAdam,
	"female_american":     elevenRachel,
	"male_american_30s":   elevenAdam,
	"male_american_40s":   elevenArnold,
	"male_american_50s":   elevenArnold,
	"female_american_30s": elevenRachel,
	"female_american_40s": elevenRachel,

	"male_british":       elevenAdam,
	"female_british":     elevenRachel,
	"male_british_30s":   elevenAdam,
	"male_british_40s":   elevenAdam,
	"female_british_30s": elevenRachel,

	"male_older":     elevenArnold,
	"female_older":   elevenRachel,
	"male_older_60s": elevenArnold,
	"male_older_70s": elevenArnold,

	"male_australian":   elevenAdam,
	"female_australian": elevenRachel,
	"male_irish":        elevenAdam,
	"female_irish":      elevenRachel,
}

// OpenAIProfiles maps descriptors to OpenAI speech voices.
var OpenAIProfiles = map[string]string{
	"host":            "nova",
	"male_american":   "onyx",
	"female_american": "nova",
	"male_british":    "fable",
	"female_british":  "shimmer",
	"male_older":      "echo",
	"female_older":    "alloy",
}

// ChatterboxVoice is a voice configured on the Chatterbox server: either a
// cloned reference recording or one of its predefined voices.
type ChatterboxVoice struct {
	Mode       string // clone or predefined
	Reference  string
	Predefined string
	Display    string
}

const DefaultChatterboxVoice = "timmy"

var ChatterboxVoices = map[string]ChatterboxVoice{
	"host":   {Mode: "clone", Reference: "TimmyVoice.mp3", Display: "Timmy"},
	"timmy":  {Mode: "clone", Reference: "TimmyVoice.mp3", Display: "Timmy"},
	"austin": {Mode: "predefined", Predefined: "Austin.wav", Display: "Austin"},
	"alice":  {Mode: "predefined", Predefined: "Alice.wav", Display: "Alice"},
}

// ChatterboxProfiles maps descriptors onto the few Chatterbox voices.
var ChatterboxProfiles = map[string]string{
	"host":            DefaultChatterboxVoice,
	"male_american":   "austin",
	"female_american": "alice",
}
