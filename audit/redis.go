package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends events to a Redis Stream (XADD). The stream is the
// append-only trail; trimming/retention is left to the operator (XTRIM or a
// retention sweep outside this module).
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to the given stream key.
// maxLen > 0 enables approximate capped length on append; 0 keeps the stream
// unbounded.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "authcore:events"
	}
	return &RedisStreamSink{redis: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":     string(event.EventType),
			"severity": string(event.Severity),
			"event":    payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit stream append: %w", err)
	}
	return nil
}
