package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// DefaultPrefix namespaces every key the cache writes.
const DefaultPrefix = "radar"

// ShortlistCache implements storage.ShortlistCache. The shortlist is a
// sorted set of mints scored by rank plus a hash of mint -> entry JSON;
// both are replaced in one MULTI on Publish. Seen markers are plain keys
// written with SET NX.
type ShortlistCache struct {
	client *goredis.Client
	prefix string
}

// NewShortlistCache wraps client. An empty prefix uses DefaultPrefix.
func NewShortlistCache(client *goredis.Client, prefix string) *ShortlistCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ShortlistCache{client: client, prefix: prefix}
}

var _ storage.ShortlistCache = (*ShortlistCache)(nil)

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *ShortlistCache) rankKey() string    { return c.prefix + ":shortlist" }
func (c *ShortlistCache) entriesKey() string { return c.prefix + ":shortlist:entries" }
func (c *ShortlistCache) seenKey(mint string) string {
	return c.prefix + ":seen:" + mint
}

// Publish replaces the current shortlist atomically.
func (c *ShortlistCache) Publish(ctx context.Context, entries []domain.ShortlistEntry) error {
	members := make([]goredis.Z, 0, len(entries))
	fields := make([]interface{}, 0, 2*len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal shortlist entry: %w", err)
		}
		members = append(members, goredis.Z{Score: float64(e.Rank), Member: e.Mint})
		fields = append(fields, e.Mint, string(data))
	}

	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, c.rankKey(), c.entriesKey())
		if len(members) > 0 {
			pipe.ZAdd(ctx, c.rankKey(), members...)
			pipe.HSet(ctx, c.entriesKey(), fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish shortlist: %w", err)
	}
	return nil
}

// Top returns up to k entries by rank; k <= 0 returns all.
func (c *ShortlistCache) Top(ctx context.Context, k int) ([]domain.ShortlistEntry, error) {
	stop := int64(-1)
	if k > 0 {
		stop = int64(k - 1)
	}
	mints, err := c.client.ZRange(ctx, c.rankKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZRANGE %s: %w", c.rankKey(), err)
	}
	if len(mints) == 0 {
		return nil, nil
	}

	values, err := c.client.HMGet(ctx, c.entriesKey(), mints...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET %s: %w", c.entriesKey(), err)
	}
	out := make([]domain.ShortlistEntry, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // replaced between the two reads
		}
		var e domain.ShortlistEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkSeen reports true only when the marker did not exist. ttl 0 keeps
// the marker forever.
func (c *ShortlistCache) MarkSeen(ctx context.Context, mint string, ttl time.Duration) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}
	ok, err := c.client.SetNX(ctx, c.seenKey(mint), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", c.seenKey(mint), err)
	}
	return ok, nil
}
