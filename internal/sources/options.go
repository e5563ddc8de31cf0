package sources

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// decodeOptions maps a source's free-form options onto a typed struct by
// round-tripping through YAML, so catalog files and code share the tags.
func decodeOptions(src types.Source, out any) error {
	if len(src.Options) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(src.Options)
	if err != nil {
		return fmt.Errorf("source %q: encode options: %w", src.ID, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("source %q: decode options: %w", src.ID, err)
	}
	return nil
}

// htmlOptions are the selector knobs shared by the scraping adapters.
type htmlOptions struct {
	Container     string `yaml:"container"`
	TitleSelector string `yaml:"title_selector"`
	LinkPattern   string `yaml:"link_pattern"`
	SameHost      bool   `yaml:"same_host"`
	SkipJSONLD    bool   `yaml:"skip_jsonld"`
	Enrich        bool   `yaml:"enrich"`
	MaxPages      int    `yaml:"max_pages"`
}

func (o htmlOptions) parserOptions() (parser.Options, error) {
	po := parser.Options{
		ContainerSelector: o.Container,
		TitleSelector:     o.TitleSelector,
		SameHost:          o.SameHost,
		SkipJSONLD:        o.SkipJSONLD,
	}
	if o.LinkPattern != "" {
		re, err := regexp.Compile(o.LinkPattern)
		if err != nil {
			return po, fmt.Errorf("link_pattern: %w", err)
		}
		po.LinkPattern = re
	}
	return po, nil
}

func (o htmlOptions) maxPages() int {
	if o.MaxPages > 0 {
		return o.MaxPages
	}
	return defaultMaxPages
}
