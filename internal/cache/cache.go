// Package cache is a thin JSON cache over Redis used for report
// summaries. A nil client disables caching; every method degrades to a
// miss or a no-op so the core never depends on Redis being up.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(studentID string, year int, month time.Month) string {
	return fmt.Sprintf("rollbook:summary:%s:%04d-%02d", studentID, year, int(month))
}

// GetMonthlySummary loads a cached summary into dst; ok is false on a
// miss, a decode failure, or when caching is disabled.
func (c *Cache) GetMonthlySummary(ctx context.Context, studentID string, year int, month time.Month, dst interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, summaryKey(studentID, year, month)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetMonthlySummary stores a summary with the configured TTL.
func (c *Cache) SetMonthlySummary(ctx context.Context, studentID string, year int, month time.Month, v interface{}) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(studentID, year, month), raw, c.ttl).Err(); err != nil {
		log.Printf("cache set failed: %v", err)
	}
}

// InvalidateMonthlySummary drops the cached summary after a mark is
// created or edited in that month.
func (c *Cache) InvalidateMonthlySummary(ctx context.Context, studentID string, year int, month time.Month) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryKey(studentID, year, month)).Err(); err != nil && err != redis.Nil {
		log.Printf("cache invalidate failed: %v", err)
	}
}
