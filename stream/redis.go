package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const readBlock = 5 * time.Second

// RedisStream backs channels with redis streams (XADD/XREAD). Append order
// is redis's stream order, which is the same for every observer.
type RedisStream struct {
	rdb    *redis.Client
	logger *log.Entry
}

func NewRedis(rdb *redis.Client) *RedisStream {
	return &RedisStream{
		rdb:    rdb,
		logger: log.WithFields(log.Fields{"module": "stream"}),
	}
}

func streamKey(channel string) string {
	return "moodsync:stream:" + channel
}

func (s *RedisStream) Append(ctx context.Context, channel string, payload []byte) (string, error) {
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", ErrUnavailable, channel, err)
	}
	return id, nil
}

// Observe starts a reader goroutine at the beginning of the stream and
// invokes fn for each entry in order. The returned cancel waits for any
// in-flight callback, so no invocation races past cancellation.
func (s *RedisStream) Observe(channel string, fn func(Record)) CancelFunc {
	ctx, stop := context.WithCancel(context.Background())
	var mu sync.Mutex
	stopped := false

	go func() {
		lastID := "0"
		for {
			res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{streamKey(channel), lastID},
				Block:   readBlock,
			}).Result()
			if ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			if err != nil {
				s.logger.Warnf("xread %s: %v", channel, err)
				time.Sleep(time.Second)
				continue
			}

			for _, str := range res {
				for _, msg := range str.Messages {
					lastID = msg.ID
					payload, _ := msg.Values["payload"].(string)

					mu.Lock()
					if stopped {
						mu.Unlock()
						return
					}
					fn(Record{ID: msg.ID, Payload: []byte(payload)})
					mu.Unlock()
				}
			}
		}
	}()

	return func() {
		stop()
		mu.Lock()
		stopped = true
		mu.Unlock()
	}
}
