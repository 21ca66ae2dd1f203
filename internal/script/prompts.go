package script

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// displayNames are the spoken names of segments in the flow line.
var displayNames = map[briefing.SegmentType]string{
	briefing.SegmentIntro:   "Intro",
	briefing.SegmentNews:    "News",
	briefing.SegmentSports:  "Sports",
	briefing.SegmentWeather: "Weather",
	briefing.SegmentFun:     "Fun Segments",
	briefing.SegmentMusic:   "Music",
	briefing.SegmentOutro:   "Sign off",
}

// DisplayName is the human name of a segment type.
func DisplayName(t briefing.SegmentType) string {
	if n, ok := displayNames[t]; ok {
		return n
	}
	return t.Title()
}

// SegmentFlow renders an order like "News → Sports → Sign off".
func SegmentFlow(order []briefing.SegmentType) string {
	names := make([]string, 0, len(order)+1)
	for _, t := range order {
		if t == briefing.SegmentIntro || t == briefing.SegmentOutro {
			continue
		}
		names = append(names, DisplayName(t))
	}
	names = append(names, DisplayName(briefing.SegmentOutro))
	return strings.Join(names, " → ")
}

var systemTmpl = template.Must(template.New("system").Parse(`You write the radio script for "Morning Drive", a personal morning briefing. Turn the raw news, sports, weather and fun material you are given into a spoken, conversational script.

WRITING STYLE ({{.Style.Name}}):
{{.Style.Prompt}}
GUIDELINES:
- Write for the ear: natural transitions, varied sentence length, "..." for a short pause
- Keep it accessible without talking down to the listener
- When you quote a real person, pick a voice profile that fits them

STRUCTURE:
- Open with a friendly greeting that mentions the date
- Present the segments in exactly this order: {{.Flow}}
- Connect the segments so nothing feels abrupt
- Close with an upbeat sign-off
{{- if .IncludeMusic}}
- MUSIC: right before the sign-off, add a "music" segment introducing today's piece so it leads straight into the music
{{- end}}
{{- if .Exclusions}}

EXCLUSIONS:
Leave out news stories about any of these topics: {{.Exclusions}}. This applies to news only.
{{- end}}
{{- if gt .DeepDiveCount 0}}

DEEP DIVES:
Choose up to {{.DeepDiveCount}} of the most significant news stories for a deeper look. Cover each one briefly in the news segment and, at the point where the deeper coverage belongs, insert a tag on its own:
[DEEP_DIVE topic="short topic" context="one sentence summary" url="source url"]
The url attribute is optional. Do not write the deep dive yourself; it is researched separately and replaces the tag.
{{- end}}

QUOTES:
Put quoted speech in its own item with voice "quote", a voice_profile such as male_american_30s, female_british_40s or male_icelandic_50s, and the speaker's name as attribution.

OUTPUT:
Return a single JSON object and nothing else:
{"segments": [{"type": "intro|news|sports|weather|fun|music|outro", "items": [
  {"voice": "host", "text": "..."},
  {"voice": "quote", "voice_profile": "female_american_50s", "text": "...", "attribution": "Speaker Name"}
]}]}`))

var userTmpl = template.Must(template.New("user").Parse(`Write a {{.Minutes}}-minute Morning Drive script for {{.Date}}.

Material, in the order it should be presented:

{{range .Sections}}{{.}}

{{end}}{{if .Music}}{{.Music}}

{{end}}Keep in mind:
- Target length: {{.Minutes}} minutes, about {{.Words}} words
- Segment order: {{.Flow}}
- Lead with the most important and interesting stories
- Quote real people where it helps, with voice profiles
- Finish with a positive sign-off
{{- if .IncludeMusic}}
- Introduce the music piece right before the sign-off
{{- end}}

Return only the JSON script.`))

type systemData struct {
	Style         WritingStyle
	Flow          string
	IncludeMusic  bool
	Exclusions    string
	DeepDiveCount int
}

type userData struct {
	Minutes      int
	Words        int
	Date         string
	Sections     []string
	Music        string
	Flow         string
	IncludeMusic bool
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// contentSections lists the bundle text for each configured segment; the
// market minute travels with the fun segment.
func contentSections(order []briefing.SegmentType, text func(briefing.SegmentType) string, market string) []string {
	var out []string
	for _, t := range order {
		if t == briefing.SegmentMusic {
			continue
		}
		if s := strings.TrimSpace(text(t)); s != "" {
			out = append(out, s)
		}
		if t == briefing.SegmentFun && strings.TrimSpace(market) != "" {
			out = append(out, strings.TrimSpace(market))
		}
	}
	return out
}

var deepDiveSystemTmpl = template.Must(template.New("deep_dive_system").Parse(`You are a researcher and writer for the "Morning Drive" radio briefing. Use the web_search and web_fetch tools to check the facts and find current detail on a story, then write one spoken paragraph that slots into the script.

WRITING STYLE ({{.Name}}):
{{.Prompt}}
RULES:
- Write only the paragraph that will be read aloud. No headings, no lists, no preamble.
- Match the tone of the surrounding script and lead naturally out of the text before it.
- 120 to 200 words.
- Attribute facts to their source in speech ("according to Reuters").
- If research turns up nothing new, write the paragraph from the context you were given.`))

var deepDiveUserTmpl = template.Must(template.New("deep_dive_user").Parse(`Story: {{.Topic}}
Context: {{.Context}}
{{- if .URL}}
Original article: {{.URL}}
{{- end}}
{{if .Before}}
Script just before this point:
"""
{{.Before}}
"""
{{end}}{{if .After}}
Script right after this point:
"""
{{.After}}
"""
{{end}}
Research the story and write the paragraph.`))

type deepDiveData struct {
	Topic, Context, URL, Before, After string
}
