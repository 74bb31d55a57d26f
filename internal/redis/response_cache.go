package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache stores serialized HTTP responses so repeated status
// pushes carrying the same Idempotency-Key can be replayed instead of
// re-applied.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// GetResponse fetches a stored response. The second return value is
// false on a cache miss.
func (s *ResponseCache) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, cacheKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetResponse stores a response for replay until ttl expires.
func (s *ResponseCache) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, cacheKey(key), data, ttl).Err()
}

func cacheKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
