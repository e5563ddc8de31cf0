//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) cfg(name string) config.NotifyConfig {
	return config.NotifyConfig{
		Enabled:     true,
		RabbitMQURL: s.amqpURL,
		Exchange:    "blogscope-" + name,
		Queue:       "blogscope." + name,
		RoutingKey:  "post.new",
	}
}

func (s *RabbitMQIntegrationSuite) TestConnect() {
	pub, err := NewRabbitMQ(s.cfg("connect"), s.logger)
	s.Require().NoError(err)
	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestNewPosts() {
	cfg := s.cfg("publish")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	posts := []types.Post{
		types.NewPost("netflix", "Scaling Kafka", "https://netflixtechblog.com/scaling-kafka"),
		types.NewPost("netflix", "Zuul 3", "https://netflixtechblog.com/zuul-3"),
	}
	s.Require().NoError(pub.NewPosts(s.ctx, "netflix", posts))

	for _, want := range posts {
		msg := s.consume(cfg)
		var got PostMessage
		s.Require().NoError(json.Unmarshal(msg.Body, &got))
		s.Equal("new", got.Action)
		s.Equal("netflix", got.SourceID)
		s.Equal(want.URL, got.Post.URL)
		s.Equal(want.ID, msg.MessageId)
	}
}

func (s *RabbitMQIntegrationSuite) consume(cfg config.NotifyConfig) amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok, err := ch.Get(cfg.Queue, true)
		s.Require().NoError(err)
		if ok {
			return msg
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.FailNow("no message received")
	return amqp.Delivery{}
}
