package pipeline

import (
	"log/slog"
	"time"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Middleware processes a post and returns the (possibly modified) post.
// Return nil to drop the post from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a post. Return nil to drop it.
	Process(post *types.Post) (*types.Post, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates an empty Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the normalization chain applied to every adapter result
// before it reaches the cache.
func Default(logger *slog.Logger, now func() time.Time) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&URLMiddleware{})
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(&IDMiddleware{})
	p.Use(&DateSanityMiddleware{Now: now, MaxSkew: 48 * time.Hour})
	p.Use(&TruncateMiddleware{Summary: 500, RawHTML: types.MaxRawHTMLChars})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the post through all middleware in order.
func (p *Pipeline) Process(post *types.Post) (*types.Post, error) {
	current := post

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				Post:  current,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("post dropped", "stage", mw.Name(), "url", post.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessAll normalizes one page of posts for sourceID. Posts that fail or
// are dropped are counted, the rest are deduplicated by canonical URL in
// page order.
func (p *Pipeline) ProcessAll(sourceID string, posts []types.Post) (kept []types.Post, dropped int) {
	kept = make([]types.Post, 0, len(posts))
	for i := range posts {
		post := posts[i]
		if post.SourceID == "" {
			post.SourceID = sourceID
		}
		out, err := p.Process(&post)
		if err != nil {
			p.logger.Warn("post rejected", "source", sourceID, "url", post.URL, "error", err)
			dropped++
			continue
		}
		if out == nil {
			dropped++
			continue
		}
		kept = append(kept, *out)
	}
	deduped := types.DedupPosts(kept)
	return deduped, dropped + len(kept) - len(deduped)
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
