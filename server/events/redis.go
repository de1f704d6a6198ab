package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "threatwatch:events"

// Number of events that may be waiting to be published before we start dropping them
const redisQueueSize = 100

// RedisSink publishes every event as JSON on a Redis pub/sub channel, so that
// other services can consume the event stream.
type RedisSink struct {
	Log     logs.Log
	client  *redis.Client
	channel string
	queue   chan []byte
	stopped chan bool
}

func NewRedisSink(log logs.Log, client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	s := &RedisSink{
		Log:     logs.NewPrefixLogger(log, "Redis"),
		client:  client,
		channel: channel,
		queue:   make(chan []byte, redisQueueSize),
		stopped: make(chan bool),
	}
	go s.publisher()
	return s
}

func (s *RedisSink) Emit(ev Event) {
	msg, err := json.Marshal(&ev)
	if err != nil {
		s.Log.Errorf("Failed to marshal %v event: %v", ev.Type, err)
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.Log.Warnf("Queue full, dropping %v event", ev.Type)
	}
}

// Close publishes any queued events, and then stops. The redis client is not closed.
func (s *RedisSink) Close() {
	close(s.queue)
	<-s.stopped
}

func (s *RedisSink) publisher() {
	lastErrAt := time.Time{}
	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.client.Publish(ctx, s.channel, msg).Err()
		cancel()
		if err != nil && time.Since(lastErrAt) > 15*time.Second {
			s.Log.Errorf("Publish to %v failed: %v", s.channel, err)
			lastErrAt = time.Now()
		}
	}
	close(s.stopped)
}
