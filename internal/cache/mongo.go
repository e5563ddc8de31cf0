package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/blogscope/internal/types"
)

type mongoPost struct {
	Key      string     `bson:"cache_key"`
	URL      string     `bson:"url"`
	Position int64      `bson:"position"`
	Post     types.Post `bson:"post"`
}

type mongoState struct {
	Key       string    `bson:"_id"`
	LastFetch time.Time `bson:"last_fetch"`
}

// MongoStore keeps cached posts and fetch times in two MongoDB collections.
type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
	state  *mongo.Collection
	now    func() time.Time
	logger *slog.Logger
}

// NewMongoStore connects to uri and prepares the collections in database.
func NewMongoStore(uri, database string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		posts:  db.Collection("cached_posts"),
		state:  db.Collection("fetch_state"),
		now:    time.Now,
		logger: logger.With("component", "mongo_cache"),
	}
	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "cache_key", Value: 1}, {Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "cache_key", Value: 1}, {Key: "position", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Get(ctx context.Context, key string) ([]types.Post, error) {
	cur, err := s.posts.Find(ctx, bson.M{"cache_key": key}, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, storageErr(s.Name(), "get", key, err)
	}
	var docs []mongoPost
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storageErr(s.Name(), "get", key, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	posts := make([]types.Post, len(docs))
	for i, d := range docs {
		posts[i] = d.Post
	}
	return posts, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, posts []types.Post) error {
	if _, err := s.posts.DeleteMany(ctx, bson.M{"cache_key": key}); err != nil {
		return storageErr(s.Name(), "set", key, err)
	}
	_, err := s.upsert(ctx, key, 0, posts)
	return err
}

func (s *MongoStore) Append(ctx context.Context, key string, posts []types.Post) (int, error) {
	var last mongoPost
	err := s.posts.FindOne(ctx, bson.M{"cache_key": key},
		options.FindOne().SetSort(bson.D{{Key: "position", Value: -1}})).Decode(&last)
	start := int64(0)
	switch {
	case err == nil:
		start = last.Position + 1
	case !errors.Is(err, mongo.ErrNoDocuments):
		return 0, storageErr(s.Name(), "append", key, err)
	}
	return s.upsert(ctx, key, start, posts)
}

// upsert inserts posts not yet stored for key; existing URLs are left
// untouched through $setOnInsert.
func (s *MongoStore) upsert(ctx context.Context, key string, start int64, posts []types.Post) (int, error) {
	posts = types.DedupPosts(posts)
	if len(posts) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, len(posts))
	for i, p := range posts {
		doc := mongoPost{Key: key, URL: types.CanonicalURL(p.URL), Position: start + int64(i), Post: p}
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"cache_key": key, "url": doc.URL}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true)
	}
	res, err := s.posts.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, storageErr(s.Name(), "upsert", key, err)
	}
	s.logger.Debug("posts cached", "key", key, "added", res.UpsertedCount)
	return int(res.UpsertedCount), nil
}

func (s *MongoStore) LastFetchTime(ctx context.Context, key string) (*time.Time, error) {
	var st mongoState
	err := s.state.FindOne(ctx, bson.M{"_id": key}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "last_fetch", key, err)
	}
	t := st.LastFetch.UTC()
	return &t, nil
}

func (s *MongoStore) SetLastFetchTime(ctx context.Context, key string, t time.Time) error {
	_, err := s.state.UpdateOne(ctx, bson.M{"_id": key},
		bson.M{"$set": bson.M{"last_fetch": t.UTC()}},
		options.Update().SetUpsert(true))
	return storageErr(s.Name(), "set_last_fetch", key, err)
}

func (s *MongoStore) ShouldRefresh(ctx context.Context, key string, interval time.Duration) (bool, error) {
	last, err := s.LastFetchTime(ctx, key)
	if err != nil {
		return false, err
	}
	return shouldRefresh(last, interval, s.now()), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
