package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/IshaanNene/blogscope/internal/cache/mocks"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/sources"
	"github.com/IshaanNene/blogscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func makePosts(prefix string, from, to int) []types.Post {
	var out []types.Post
	for i := from; i <= to; i++ {
		out = append(out, types.NewPost("netflix", fmt.Sprintf("Post %s %d", prefix, i), fmt.Sprintf("https://blog.test/%s/%d", prefix, i)))
	}
	return out
}

func testCatalog(srcs ...types.Source) *sources.Catalog {
	c := &sources.Catalog{}
	for _, s := range srcs {
		c.Add(s)
	}
	return c
}

var netflix = types.Source{ID: "netflix", Name: "Netflix", Homepage: "https://netflixtechblog.com", RSS: "https://netflixtechblog.com/feed"}

type recordingNotifier struct {
	mu    sync.Mutex
	posts []types.Post
}

func (n *recordingNotifier) NewPosts(_ context.Context, _ string, posts []types.Post) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, posts...)
	return nil
}

type ServiceTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockStore
	notifier *recordingNotifier
	cfg      config.EngineConfig

	calls   atomic.Int32
	adapter sources.AdapterFunc
	lastOpt types.FetchOptions
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.notifier = &recordingNotifier{}
	s.cfg = config.EngineConfig{RefreshInterval: 6 * time.Hour, MaxPostsPerPage: 20}
	s.calls.Store(0)
	s.adapter = nil
}

func (s *ServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) service() *Service {
	adapters := sources.AdapterFunc(func(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
		s.calls.Add(1)
		s.lastOpt = opts
		return s.adapter(ctx, src, opts)
	})
	return New(s.cfg, testCatalog(netflix), adapters, s.store, testLogger, WithNotifier(s.notifier))
}

func (s *ServiceTestSuite) returns(posts []types.Post, hasMore bool) {
	s.adapter = func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		return &types.FetchResult{Posts: posts, HasMore: hasMore, Strategy: "feed"}, nil
	}
}

func (s *ServiceTestSuite) TestFreshCacheServedWithoutFetch() {
	s.returns(nil, false)
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", 6*time.Hour).Return(false, nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(makePosts("a", 1, 25), nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1})

	s.Require().NoError(err)
	s.True(res.FromCache)
	s.False(res.Stale)
	s.Len(res.Posts, 20)
	s.True(res.HasMore)
	s.Equal(25, res.Cached)
	s.Equal(StrategyCache, res.Strategy)
	s.Zero(s.calls.Load())
}

func (s *ServiceTestSuite) TestMergeKeepsCachedPosts() {
	incoming := append(makePosts("a", 16, 20), makePosts("b", 1, 10)...)
	s.returns(incoming, true)

	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", gomock.Any()).Return(true, nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(makePosts("a", 1, 20), nil)
	s.store.EXPECT().Append(gomock.Any(), "netflix", gomock.Len(15)).Return(10, nil)
	s.store.EXPECT().SetLastFetchTime(gomock.Any(), "netflix", gomock.Any()).Return(nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1, MaxPosts: 20})

	s.Require().NoError(err)
	s.False(res.FromCache)
	s.Len(res.Posts, 15)
	s.Equal(10, res.Added)
	s.Equal(30, res.Cached)
	s.True(res.HasMore)
	s.Len(s.notifier.posts, 10)
	s.Equal("https://blog.test/b/1", s.notifier.posts[0].URL)
}

func (s *ServiceTestSuite) TestStaleCacheServedOnFetchError() {
	s.adapter = func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		return nil, &types.FetchError{SourceID: "netflix", URL: "https://netflixtechblog.com/feed", StatusCode: 503, Err: types.ErrMaxRetries}
	}
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", gomock.Any()).Return(true, nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(makePosts("a", 1, 5), nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1})

	s.Require().NoError(err)
	s.True(res.Stale)
	s.True(res.FromCache)
	s.Len(res.Posts, 5)
}

func (s *ServiceTestSuite) TestFetchErrorWithoutCachePropagates() {
	s.adapter = func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		return nil, &types.FetchError{URL: "https://netflixtechblog.com/feed", Err: types.ErrMaxRetries}
	}
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", gomock.Any()).Return(true, nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(nil, nil)

	_, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1})

	var fe *types.FetchError
	s.Require().ErrorAs(err, &fe)
	s.ErrorIs(err, types.ErrMaxRetries)
}

func (s *ServiceTestSuite) TestEmptyRefetchKeepsCache() {
	s.returns(nil, false)
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", gomock.Any()).Return(true, nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(makePosts("a", 1, 5), nil)
	s.store.EXPECT().SetLastFetchTime(gomock.Any(), "netflix", gomock.Any()).Return(nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1})

	s.Require().NoError(err)
	s.Empty(res.Posts)
	s.Equal(5, res.Cached)
	s.Zero(res.Added)
}

func (s *ServiceTestSuite) TestForceOverwriteReplacesCache() {
	s.returns(nil, false)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(makePosts("a", 1, 5), nil)
	s.store.EXPECT().Set(gomock.Any(), "netflix", gomock.Nil()).Return(nil)
	s.store.EXPECT().SetLastFetchTime(gomock.Any(), "netflix", gomock.Any()).Return(nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1, ForceRefresh: true, ForceOverwrite: true})

	s.Require().NoError(err)
	s.Zero(res.Cached)
}

func (s *ServiceTestSuite) TestLaterPagesAlwaysFetch() {
	s.returns(makePosts("b", 1, 10), true)
	s.store.EXPECT().Get(gomock.Any(), "netflix:category=ml").Return(makePosts("a", 1, 10), nil)
	s.store.EXPECT().Append(gomock.Any(), "netflix:category=ml", gomock.Len(10)).Return(10, nil)

	res, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 2, MaxPosts: 10, Category: "ML"})

	s.Require().NoError(err)
	s.EqualValues(1, s.calls.Load())
	s.Equal(20, res.Cached)
	s.True(res.HasMore)
}

func (s *ServiceTestSuite) TestTimeoutDiscardsPartialResult() {
	s.cfg.CallTimeout = 30 * time.Millisecond
	s.adapter = func(ctx context.Context, _ types.Source, _ types.FetchOptions) (*types.FetchResult, error) {
		<-ctx.Done()
		return &types.FetchResult{Posts: makePosts("a", 1, 3)}, nil
	}
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "netflix", gomock.Any()).Return(true, nil)

	_, err := s.service().FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1})

	s.ErrorIs(err, types.ErrTimeout)
}

func (s *ServiceTestSuite) TestDetectedPatternFedToNextCall() {
	pattern := "https://blog.test/list?page=2"
	s.adapter = func(_ context.Context, _ types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
		return &types.FetchResult{Posts: makePosts(fmt.Sprint(opts.Page), 1, 3), HasMore: true, DetectedPattern: pattern}, nil
	}
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(nil, nil).AnyTimes()
	s.store.EXPECT().Append(gomock.Any(), "netflix", gomock.Any()).Return(3, nil).AnyTimes()

	svc := s.service()
	res, err := svc.FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 2})
	s.Require().NoError(err)
	s.Equal(pattern, res.DetectedPattern)
	s.Empty(s.lastOpt.DetectedPattern)

	_, err = svc.FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 3})
	s.Require().NoError(err)
	s.Equal(pattern, s.lastOpt.DetectedPattern)
}

func (s *ServiceTestSuite) TestRepeatedPageEndsListing() {
	same := makePosts("a", 1, 5)
	s.returns(same, true)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(nil, nil)
	s.store.EXPECT().Append(gomock.Any(), "netflix", gomock.Any()).Return(5, nil)
	s.store.EXPECT().SetLastFetchTime(gomock.Any(), "netflix", gomock.Any()).Return(nil)
	s.store.EXPECT().Get(gomock.Any(), "netflix").Return(same, nil)

	svc := s.service()
	_, err := svc.FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 1, ForceRefresh: true, MaxPosts: 5})
	s.Require().NoError(err)

	res, err := svc.FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: 2, MaxPosts: 5})
	s.Require().NoError(err)
	s.Empty(res.Posts)
	s.False(res.HasMore)
}

func (s *ServiceTestSuite) TestUnknownSource() {
	_, err := s.service().FetchPosts(context.Background(), "nope", types.FetchOptions{})
	s.ErrorIs(err, types.ErrUnknownSource)
}

func (s *ServiceTestSuite) TestNoFetchStrategyPropagates() {
	bare := types.Source{ID: "bare", Homepage: "https://bare.test"}
	registry := sources.NewRegistry(sources.NewEnv(nil, testLogger))
	dispatcher, err := sources.NewDispatcher(registry, nil)
	s.Require().NoError(err)
	s.store.EXPECT().ShouldRefresh(gomock.Any(), "bare", gomock.Any()).Return(true, nil)

	svc := New(s.cfg, testCatalog(bare), dispatcher, s.store, testLogger)
	_, err = svc.FetchPosts(context.Background(), "bare", types.FetchOptions{Page: 1})

	var nfs *types.NoFetchStrategyError
	s.Require().ErrorAs(err, &nfs)
	s.Equal("bare", nfs.SourceID)
}

func (s *ServiceTestSuite) TestSummarizeWithoutSummarizer() {
	_, err := s.service().Summarize(context.Background(), makePosts("a", 1, 1)[0])
	s.True(errors.Is(err, ErrNoSummarizer))
}
