package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores fornecedora credit summaries in Redis so the back office can
// render supplier balances without rescanning the ledger.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(fornecedoraID int64) string {
	return fmt.Sprintf("credit:summary:%d", fornecedoraID)
}

// Fetch loads a cached summary or populates it using the loader.
func (c *Cache) Fetch(ctx context.Context, fornecedoraID int64, loader func(context.Context) (Summary, error)) (Summary, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := summaryKey(fornecedoraID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var sum Summary
		if jsonErr := json.Unmarshal(raw, &sum); jsonErr == nil {
			return sum, nil
		}
		// Corrupt entry; fall through and rebuild.
	} else if err != redis.Nil {
		return Summary{}, err
	}
	sum, err := loader(ctx)
	if err != nil {
		return Summary{}, err
	}
	payload, err := json.Marshal(sum)
	if err != nil {
		return Summary{}, err
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Invalidate drops the cached summary after a credit transition.
func (c *Cache) Invalidate(ctx context.Context, fornecedoraID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(fornecedoraID)).Err()
}
