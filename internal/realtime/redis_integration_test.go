//go:build integration

package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RedisRealtimeSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	rdb       *redis.Client
	logger    *slog.Logger
}

func (s *RedisRealtimeSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	endpoint, err := container.Endpoint(s.ctx, "")
	s.Require().NoError(err)
	s.rdb = redis.NewClient(&redis.Options{Addr: endpoint})
}

func (s *RedisRealtimeSuite) TearDownSuite() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRedisRealtimeSuite(t *testing.T) {
	suite.Run(t, new(RedisRealtimeSuite))
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(status Status, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) has(status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.statuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s *RedisRealtimeSuite) TestPublishReachesFilteredBinding() {
	client := NewRedisClient(s.rdb, s.logger)
	publisher := NewRedisPublisher(s.rdb)

	events := make(chan Event, 4)
	ch := client.Channel("contributions:ana").On(EventSpec{
		Table:  "price_contributions",
		Type:   EventUpdate,
		Filter: &Filter{Column: "user_id", Value: "ana"},
	}, func(e Event) { events <- e })

	rec := &statusRecorder{}
	ch.Subscribe(rec.record)
	defer ch.Unsubscribe()
	s.Require().Eventually(func() bool { return rec.has(StatusSubscribed) }, 5*time.Second, 10*time.Millisecond)

	s.Require().NoError(publisher.Publish(s.ctx, Event{
		Table: "price_contributions", Type: EventUpdate,
		New: map[string]any{"id": "1", "user_id": "bia", "verified": true},
	}))
	s.Require().NoError(publisher.Publish(s.ctx, Event{
		Table: "price_contributions", Type: EventUpdate,
		New: map[string]any{"id": "2", "user_id": "ana", "verified": true},
		Old: map[string]any{"verified": false},
	}))

	select {
	case e := <-events:
		s.Equal("2", e.New["id"])
		s.Equal(true, e.New["verified"])
		s.Equal(false, e.Old["verified"])
	case <-time.After(5 * time.Second):
		s.Fail("event not delivered")
	}
	s.Empty(events)
}

func (s *RedisRealtimeSuite) TestUnsubscribeStopsDelivery() {
	client := NewRedisClient(s.rdb, s.logger)
	publisher := NewRedisPublisher(s.rdb)

	events := make(chan Event, 4)
	ch := client.Channel("admin-suggestions").On(EventSpec{Table: "suggestions", Type: EventInsert}, func(e Event) { events <- e })

	rec := &statusRecorder{}
	ch.Subscribe(rec.record)
	s.Require().Eventually(func() bool { return rec.has(StatusSubscribed) }, 5*time.Second, 10*time.Millisecond)

	s.Require().NoError(ch.Unsubscribe())
	s.Require().NoError(ch.Unsubscribe())

	s.Require().NoError(publisher.Publish(s.ctx, Event{Table: "suggestions", Type: EventInsert, New: map[string]any{"id": "9"}}))
	time.Sleep(100 * time.Millisecond)
	s.Empty(events)
}
