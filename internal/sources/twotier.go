package sources

import (
	"context"
	"fmt"

	"github.com/IshaanNene/blogscope/internal/types"
)

type twoTierOptions struct {
	Featured struct {
		htmlOptions `yaml:",inline"`
		URL         string `yaml:"url"`
	} `yaml:"featured"`
	Community *jsonAPIOptions `yaml:"community"`
}

// TwoTierAdapter serves a curated listing as page 1 and a paginated
// community feed as pages 2 and on. Each tier decides its own hasMore.
type TwoTierAdapter struct {
	env       *Env
	opts      twoTierOptions
	community *JSONAPIAdapter
}

func newTwoTier(env *Env, src types.Source) (Adapter, error) {
	a := &TwoTierAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	if a.opts.Community != nil {
		c, err := jsonAPIFromOptions(env, src.ID, *a.opts.Community)
		if err != nil {
			return nil, fmt.Errorf("community tier: %w", err)
		}
		a.community = c
	}
	return a, nil
}

// Fetch implements Adapter.
func (a *TwoTierAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	if opts.Page == 1 {
		featured := opts
		featured.DetectedPattern = ""
		res, err := scrapeListing(ctx, a.env, src, listURLOf(src, a.opts.Featured.URL), a.opts.Featured.htmlOptions, featured)
		if err != nil {
			return nil, err
		}
		res.DetectedPattern = ""
		res.HasMore = a.community != nil
		res.NextPageURL = ""
		if res.HasMore {
			res.NextPageURL, _ = a.community.pageURL(1, opts)
		}
		return res, nil
	}
	if a.community == nil {
		return &types.FetchResult{}, nil
	}
	community := opts
	community.Page = opts.Page - 1
	res, err := a.community.Fetch(ctx, src, community)
	if err != nil {
		return nil, err
	}
	return res, nil
}
