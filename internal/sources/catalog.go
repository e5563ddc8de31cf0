package sources

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the static set of configured sources.
type Catalog struct {
	Sources []types.Source `yaml:"sources"`

	index map[string]int
}

// DefaultCatalog returns the compiled-in catalog. It panics if the embedded
// file is invalid, which tests guard against.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	c.index = make(map[string]int, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("catalog entry %d: id is required", i)
		}
		if _, dup := c.index[s.ID]; dup {
			return fmt.Errorf("catalog: duplicate source id %q", s.ID)
		}
		for _, raw := range []string{s.Homepage, s.RSS, s.BlogListURL} {
			if raw == "" {
				continue
			}
			if err := config.ValidateURL(raw); err != nil {
				return fmt.Errorf("source %q: %w", s.ID, err)
			}
		}
		c.index[s.ID] = i
	}
	return nil
}

// Get returns the source with the given ID.
func (c *Catalog) Get(id string) (types.Source, bool) {
	i, ok := c.index[id]
	if !ok {
		return types.Source{}, false
	}
	return c.Sources[i], true
}

// All returns the sources ordered by ID.
func (c *Catalog) All() []types.Source {
	out := make([]types.Source, len(c.Sources))
	copy(out, c.Sources)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add inserts or replaces a source.
func (c *Catalog) Add(src types.Source) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[src.ID]; ok {
		c.Sources[i] = src
		return
	}
	c.index[src.ID] = len(c.Sources)
	c.Sources = append(c.Sources, src)
}
