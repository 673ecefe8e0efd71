package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
	"prism-board/persistence"
)

// Cache wraps a gateway with a Redis read-through cache of each user's board
// documents. Writes go to the base gateway and evict the user's entry.
type Cache struct {
	base  persistence.Gateway
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching gateway using the provided Redis client and TTL.
func NewCache(base persistence.Gateway, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base gateway is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchAll(ctx context.Context, userID string) ([]domain.BoardDocument, error) {
	if docs, ok := c.load(ctx, userID); ok {
		return docs, nil
	}
	docs, err := c.base.FetchAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, userID, docs)
	return docs, nil
}

func (c *Cache) Upsert(ctx context.Context, doc domain.BoardDocument) error {
	if err := c.base.Upsert(ctx, doc); err != nil {
		return err
	}
	c.evict(ctx, doc.UserID)
	return nil
}

func (c *Cache) Delete(ctx context.Context, userID, boardID string) error {
	if err := c.base.Delete(ctx, userID, boardID); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) load(ctx context.Context, userID string) ([]domain.BoardDocument, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardsCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the base gateway without failing.
			_ = c.redis.Del(ctx, boardsCacheKey(userID)).Err()
		}
		return nil, false
	}
	var docs []domain.BoardDocument
	if err := sonic.Unmarshal(data, &docs); err != nil {
		_ = c.redis.Del(ctx, boardsCacheKey(userID)).Err()
		return nil, false
	}
	return docs, true
}

func (c *Cache) store(ctx context.Context, userID string, docs []domain.BoardDocument) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(docs)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardsCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardsCacheKey(userID)).Err()
}

func boardsCacheKey(userID string) string {
	return "boards:" + userID
}
