package sources

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Factory builds an adapter for one source from its options.
type Factory func(env *Env, src types.Source) (Adapter, error)

// Registry maps adapter kinds to factories and keeps the adapters bound to
// individual sources.
type Registry struct {
	env    *Env
	kinds  map[string]Factory
	bound  map[string]Adapter
	rss    *RSSAdapter
	html   *HTMLAdapter
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewRegistry creates a registry with every built-in kind registered.
func NewRegistry(env *Env) *Registry {
	r := &Registry{
		env:    env,
		kinds:  make(map[string]Factory),
		bound:  make(map[string]Adapter),
		logger: env.Logger.With("component", "adapter_registry"),
	}
	r.html = NewHTMLAdapter(env)
	r.rss = NewRSSAdapter(env, r.html)

	r.kinds[KindRSS] = func(*Env, types.Source) (Adapter, error) { return r.rss, nil }
	r.kinds[KindHTML] = func(*Env, types.Source) (Adapter, error) { return r.html, nil }
	r.kinds[KindWordPress] = newWordPress
	r.kinds[KindJSONAPI] = newJSONAPI
	r.kinds[KindNextData] = newNextData
	r.kinds[KindApollo] = newApollo
	r.kinds[KindArchive] = newArchive
	r.kinds[KindAggregate] = newAggregate
	r.kinds[KindTwoTier] = newTwoTier
	r.kinds[KindSitemap] = newSitemap
	r.kinds[KindMultiCategory] = newMultiCategory(r)
	return r
}

// RegisterKind adds a new adapter kind.
func (r *Registry) RegisterKind(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[kind]; exists {
		return fmt.Errorf("adapter kind %q already registered", kind)
	}
	r.kinds[kind] = f
	r.logger.Info("adapter kind registered", "kind", kind)
	return nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) build(kind string, src types.Source) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %q: unknown adapter kind %q", src.ID, kind)
	}
	return f(r.env, src)
}

// Bind builds the source's custom adapter and binds it to the source ID.
// Sources without an adapter kind are left to the generic strategies.
func (r *Registry) Bind(src types.Source) error {
	if src.Adapter == "" || src.Adapter == KindRSS || src.Adapter == KindHTML {
		return nil
	}
	a, err := r.build(src.Adapter, src)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bound[src.ID]; exists {
		return fmt.Errorf("source %q already has an adapter", src.ID)
	}
	r.bound[src.ID] = a
	r.logger.Debug("adapter bound", "source", src.ID, "kind", src.Adapter)
	return nil
}

// BindAdapter binds a ready-made adapter to a source ID, replacing any
// previous binding.
func (r *Registry) BindAdapter(sourceID string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[sourceID] = a
}

// Lookup returns the adapter bound to sourceID.
func (r *Registry) Lookup(sourceID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bound[sourceID]
	return a, ok
}
