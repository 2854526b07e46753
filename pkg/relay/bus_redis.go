package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the production SessionBus, backed by Redis Pub/Sub on
// "channel:translation:{session_id}" — the same channel naming
// original_source's streaming_translation_processor.py publishes to.
// Subscribers get a best-effort, non-durable delivery exactly like Redis
// Pub/Sub itself: a subscriber connected after a publish never sees it.
type RedisBus struct {
	client *redis.Client
	logger Logger

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

func NewRedisBus(client *redis.Client, logger Logger) *RedisBus {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &RedisBus{
		client: client,
		logger: logger,
		subs:   make(map[string]*redis.PubSub),
	}
}

func topicName(sessionID string) string {
	return fmt.Sprintf("channel:translation:%s", sessionID)
}

func (b *RedisBus) Publish(sessionID string, event BusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal bus event", "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), topicName(sessionID), payload).Err(); err != nil {
		b.logger.Warn("failed to publish bus event", "session_id", sessionID, "error", err)
	}
}

func (b *RedisBus) Subscribe(sessionID string) (<-chan BusEvent, func()) {
	ps := b.client.Subscribe(context.Background(), topicName(sessionID))
	out := make(chan BusEvent, subscriberBufferSize)

	done := make(chan struct{})
	go func() {
		ch := ps.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					close(out)
					return
				}
				var event BusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("failed to unmarshal bus event", "error", err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			case <-done:
				close(out)
				return
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		ps.Close()
	}
	return out, unsubscribe
}
