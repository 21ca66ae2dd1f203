// Package script turns gathered content into a spoken briefing script, titles
// it and expands deep-dive placeholders with researched paragraphs.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/content"
	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
	"github.com/mohammad-safakhou/morningdrive/internal/llm"
)

const (
	scriptMaxTokens = 4096
	titleMaxTokens  = 50
	wordsPerMinute  = 150

	titleItemChars    = 200
	titleSummaryChars = 1500
	defaultTitleTopic = "Morning Briefing"
)

var ErrNoLLM = errors.New("script writer has no llm client")

// Input is everything one script write needs.
type Input struct {
	Bundle        content.Bundle
	Settings      briefing.UserSettings
	Rules         briefing.GenerationRules
	IncludeMusic  bool
	DeepDiveCount int
	Now           time.Time
}

func (in Input) now() time.Time {
	if in.Now.IsZero() {
		return time.Now().In(in.Settings.Location())
	}
	return in.Now
}

// Prompts is the rendered system and user prompt of a write.
type Prompts struct {
	System string
	User   string
}

// Generator writes scripts with an LLM.
type Generator struct {
	LLM    llm.Completer
	Styles *Styles
	Logger *log.Logger
}

func (g *Generator) logf(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}

func (g *Generator) styles() *Styles {
	if g.Styles != nil {
		return g.Styles
	}
	s, err := LoadStyles()
	if err != nil {
		// embedded catalog is compiled in; a broken one is a build defect
		panic(err)
	}
	return s
}

// BuildPrompts renders the system and user prompts for in.
func (g *Generator) BuildPrompts(in Input) (Prompts, error) {
	order := in.Settings.SegmentOrder
	if len(order) == 0 {
		order = briefing.DefaultUserSettings("").SegmentOrder
	}
	flow := SegmentFlow(order)
	rules := in.Rules
	if rules.TargetDurationMinutes == 0 {
		rules = briefing.RulesFor(in.Settings.LengthMode)
	}
	words := rules.TargetWordCount
	if words == 0 {
		words = rules.TargetDurationMinutes * wordsPerMinute
	}

	system, err := render(systemTmpl, systemData{
		Style:         g.styles().Get(in.Settings.WritingStyle),
		Flow:          flow,
		IncludeMusic:  in.IncludeMusic,
		Exclusions:    strings.Join(in.Settings.Exclusions, ", "),
		DeepDiveCount: in.DeepDiveCount,
	})
	if err != nil {
		return Prompts{}, fmt.Errorf("render system prompt: %w", err)
	}
	var music string
	if in.IncludeMusic {
		music = strings.TrimSpace(in.Bundle.Music)
	}
	user, err := render(userTmpl, userData{
		Minutes:      rules.TargetDurationMinutes,
		Words:        words,
		Date:         in.now().Format("Monday, January 2, 2006"),
		Sections:     contentSections(order, in.Bundle.Text, in.Bundle.Market),
		Music:        music,
		Flow:         flow,
		IncludeMusic: in.IncludeMusic,
	})
	if err != nil {
		return Prompts{}, fmt.Errorf("render user prompt: %w", err)
	}
	return Prompts{System: system, User: user}, nil
}

// Write produces the script. LLM and parse failures come back as a
// briefing.RecoverableError carrying FallbackScript, so callers wrapping it in
// a step always end up with something playable.
func (g *Generator) Write(ctx context.Context, in Input) (*briefing.Script, error) {
	now := in.now()
	fallback := FallbackScript(now)
	if g.LLM == nil {
		return nil, ErrNoLLM
	}
	prompts, err := g.BuildPrompts(in)
	if err != nil {
		return nil, err
	}
	raw, err := g.LLM.Complete(ctx, llm.Request{System: prompts.System, User: prompts.User, MaxTokens: scriptMaxTokens})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, briefing.Recoverable(fmt.Errorf("write script: %w", err), fallback, "minimal intro/outro script")
	}
	s, err := Parse(raw)
	if err != nil {
		g.logf("warn: script response unusable: %v; response starts %q", err, helpers.Preview(raw, 200))
		return nil, briefing.Recoverable(err, fallback, "minimal intro/outro script")
	}
	s.Date = now.Format("2006-01-02")
	s.Segments = Reorder(s.Segments, in.Settings.SegmentOrder, in.IncludeMusic)
	return s, nil
}

type rawItem struct {
	Voice        string  `json:"voice"`
	VoiceProfile *string `json:"voice_profile"`
	Text         string  `json:"text"`
	Attribution  *string `json:"attribution"`
}

type rawSegment struct {
	Type  string    `json:"type"`
	Items []rawItem `json:"items"`
}

type rawScript struct {
	Segments []rawSegment `json:"segments"`
}

// Parse reads the writer's JSON, tolerating code fences and surrounding prose.
// Items without text are dropped, missing voices become "host" and missing
// types become "unknown".
func Parse(raw string) (*briefing.Script, error) {
	doc, err := helpers.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := ValidateScriptDocument([]byte(doc)); err != nil {
		return nil, err
	}
	var rs rawScript
	if err := json.Unmarshal([]byte(doc), &rs); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	s := &briefing.Script{}
	for _, seg := range rs.Segments {
		typ := briefing.SegmentType(strings.ToLower(strings.TrimSpace(seg.Type)))
		if typ == "" {
			typ = briefing.SegmentUnknown
		}
		out := briefing.Segment{Type: typ}
		for _, it := range seg.Items {
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			item := briefing.Item{Voice: strings.TrimSpace(it.Voice), Text: text}
			if item.Voice == "" {
				item.Voice = "host"
			}
			if it.VoiceProfile != nil {
				item.VoiceProfile = *it.VoiceProfile
			}
			if it.Attribution != nil {
				item.Attribution = *it.Attribution
			}
			out.Items = append(out.Items, item)
		}
		if len(out.Items) > 0 {
			s.Segments = append(s.Segments, out)
		}
	}
	if len(s.Segments) == 0 {
		return nil, fmt.Errorf("parse script: no segments with text")
	}
	return s, nil
}

// Reorder puts segments into playback order: intro, the configured order,
// any segment types the writer added on its own, music (when enabled and not
// placed by the configured order), then the outro. Segments of the same type
// keep their relative order.
func Reorder(segs []briefing.Segment, order []briefing.SegmentType, includeMusic bool) []briefing.Segment {
	byType := make(map[briefing.SegmentType][]briefing.Segment)
	var seen []briefing.SegmentType
	for _, s := range segs {
		if _, ok := byType[s.Type]; !ok {
			seen = append(seen, s.Type)
		}
		byType[s.Type] = append(byType[s.Type], s)
	}

	var out []briefing.Segment
	placed := make(map[briefing.SegmentType]bool)
	take := func(t briefing.SegmentType) {
		if placed[t] {
			return
		}
		placed[t] = true
		out = append(out, byType[t]...)
	}

	take(briefing.SegmentIntro)
	for _, t := range order {
		if t == briefing.SegmentIntro || t == briefing.SegmentOutro {
			continue
		}
		if t == briefing.SegmentMusic && !includeMusic {
			continue
		}
		take(t)
	}
	for _, t := range seen {
		if t == briefing.SegmentOutro || t == briefing.SegmentMusic {
			continue
		}
		take(t)
	}
	if includeMusic {
		take(briefing.SegmentMusic)
	}
	take(briefing.SegmentOutro)
	return out
}

// FallbackScript is the minimal greeting and sign-off used when the writer fails.
func FallbackScript(now time.Time) *briefing.Script {
	return &briefing.Script{
		Date: now.Format("2006-01-02"),
		Segments: []briefing.Segment{
			{Type: briefing.SegmentIntro, Items: []briefing.Item{{
				Voice: "host",
				Text:  fmt.Sprintf("Good morning! It's %s, and this is your Morning Drive briefing.", now.Format("Monday, January 2, 2006")),
			}}},
			{Type: briefing.SegmentOutro, Items: []briefing.Item{{
				Voice: "host",
				Text:  "That's all for today's Morning Drive. Have a great day!",
			}}},
		},
	}
}

const titlePrompt = `Here is a summary of this morning's briefing:

%s

Reply with 3 to 6 words naming the main topics, for example "Fed Rate Cut, Storm Warnings". No date, no quotes, nothing else.`

// Title names the briefing "M/D/YY - topics". Any failure falls back to
// "M/D/YY - Morning Briefing".
func (g *Generator) Title(ctx context.Context, s *briefing.Script, now time.Time) string {
	date := fmt.Sprintf("%d/%d/%s", int(now.Month()), now.Day(), now.Format("06"))
	fallback := date + " - " + defaultTitleTopic
	if g.LLM == nil || s == nil {
		return fallback
	}
	var parts []string
	for _, seg := range s.Segments {
		for _, it := range seg.Items {
			parts = append(parts, helpers.Truncate(it.Text, titleItemChars))
		}
	}
	summary := helpers.Truncate(strings.Join(parts, " "), titleSummaryChars)
	if strings.TrimSpace(summary) == "" {
		return fallback
	}
	topic, err := g.LLM.Complete(ctx, llm.Request{User: fmt.Sprintf(titlePrompt, summary), MaxTokens: titleMaxTokens})
	if err != nil {
		g.logf("warn: title generation failed: %v", err)
		return fallback
	}
	topic = strings.Trim(strings.TrimSpace(topic), `"'.,`)
	if topic == "" {
		return fallback
	}
	return date + " - " + topic
}
