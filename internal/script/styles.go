package script

import (
	"fmt"
	"sort"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// DefaultStyle is used when a user has not picked a writing style.
const DefaultStyle = "good_morning_america"

//go:embed writing_styles.yaml
var writingStylesYAML []byte

// WritingStyle is a named tone instruction for the script writer.
type WritingStyle struct {
	Key    string `yaml:"-"`
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// Styles is the writing style catalog.
type Styles struct {
	Default string                  `yaml:"default"`
	Styles  map[string]WritingStyle `yaml:"styles"`
}

var (
	stylesOnce sync.Once
	styles     *Styles
	stylesErr  error
)

// LoadStyles returns the embedded catalog, parsed once.
func LoadStyles() (*Styles, error) {
	stylesOnce.Do(func() {
		styles, stylesErr = ParseStyles(writingStylesYAML)
	})
	return styles, stylesErr
}

// ParseStyles decodes a YAML style catalog.
func ParseStyles(data []byte) (*Styles, error) {
	var s Styles
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse writing styles: %w", err)
	}
	if len(s.Styles) == 0 {
		return nil, fmt.Errorf("writing styles: catalog is empty")
	}
	for k, st := range s.Styles {
		st.Key = k
		s.Styles[k] = st
	}
	if s.Default == "" {
		s.Default = DefaultStyle
	}
	if _, ok := s.Styles[s.Default]; !ok {
		return nil, fmt.Errorf("writing styles: default %q is not defined", s.Default)
	}
	return &s, nil
}

// Get resolves key, falling back to the catalog default for unknown keys.
func (s *Styles) Get(key string) WritingStyle {
	if st, ok := s.Styles[key]; ok {
		return st
	}
	return s.Styles[s.Default]
}

// Keys lists the style keys in sorted order.
func (s *Styles) Keys() []string {
	keys := make([]string, 0, len(s.Styles))
	for k := range s.Styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
