package sources

import (
	"context"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Strategy names returned by Resolve.
const (
	StrategyCustom = "custom"
	StrategyRSS    = "rss"
	StrategyHTML   = "html"
)

// Dispatcher chooses the fetch strategy for a source: its bound custom
// adapter, then its feed, then generic scraping when allowed.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher binds every catalog source to the registry and returns a
// dispatcher over it.
func NewDispatcher(registry *Registry, catalog *Catalog) (*Dispatcher, error) {
	if catalog != nil {
		for _, src := range catalog.All() {
			if err := registry.Bind(src); err != nil {
				return nil, err
			}
		}
	}
	return &Dispatcher{registry: registry}, nil
}

// Resolve returns the adapter for src and the strategy it represents.
func (d *Dispatcher) Resolve(src types.Source) (Adapter, string, error) {
	if a, ok := d.registry.Lookup(src.ID); ok {
		return a, StrategyCustom, nil
	}
	if src.RSS != "" && src.Adapter != KindHTML {
		return d.registry.rss, StrategyRSS, nil
	}
	if src.AllowScrape && src.BlogListURL != "" {
		return d.registry.html, StrategyHTML, nil
	}
	return nil, "", &types.NoFetchStrategyError{SourceID: src.ID}
}

// Fetch resolves src and runs its adapter.
func (d *Dispatcher) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	a, _, err := d.Resolve(src)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, src, opts)
}
