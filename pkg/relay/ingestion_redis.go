package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisIngestionStream backs the durable ingestion stream with Redis
// Streams: XADD per frame, XREADGROUP for consumer-group delivery, XACK
// to acknowledge. One Redis stream key per (session_id, speaker_id)
// partition, matching the per-speaker ordering guarantee spec §5 requires
// within a key (Redis Streams are append-ordered per key by construction).
type RedisIngestionStream struct {
	client        *redis.Client
	consumerGroup string
	consumerName  string
	blockTimeout  func() int64
}

func NewRedisIngestionStream(client *redis.Client, consumerGroup, consumerName string) *RedisIngestionStream {
	return &RedisIngestionStream{
		client:        client,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
	}
}

func streamName(key StreamKey) string {
	return fmt.Sprintf("ingestion:%s", key.String())
}

func (r *RedisIngestionStream) ensureGroup(ctx context.Context, stream string) {
	// MKSTREAM creates the stream if absent; BUSYGROUP (group exists) is
	// expected on every call after the first and is ignored.
	_ = r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
}

func (r *RedisIngestionStream) Append(ctx context.Context, key StreamKey, sourceLang Language, data []byte) (string, error) {
	stream := streamName(key)
	r.ensureGroup(ctx, stream)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"session_id":  key.SessionID,
			"speaker_id":  key.SpeakerID,
			"source_lang": string(sourceLang),
			"data":        data,
		},
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *RedisIngestionStream) Read(ctx context.Context, key StreamKey) (IngestionRecord, error) {
	stream := streamName(key)
	r.ensureGroup(ctx, stream)

	results, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		return IngestionRecord{}, err
	}
	if len(results) == 0 || len(results[0].Messages) == 0 {
		return IngestionRecord{}, fmt.Errorf("relay: no messages read from %s", stream)
	}

	msg := results[0].Messages[0]
	data, _ := msg.Values["data"].(string)
	sourceLang, _ := msg.Values["source_lang"].(string)
	return IngestionRecord{
		RecordID:   msg.ID,
		SessionID:  key.SessionID,
		SpeakerID:  key.SpeakerID,
		SourceLang: Language(sourceLang),
		Data:       []byte(data),
	}, nil
}

func (r *RedisIngestionStream) Ack(ctx context.Context, key StreamKey, recordID string) error {
	return r.client.XAck(ctx, streamName(key), r.consumerGroup, recordID).Err()
}
