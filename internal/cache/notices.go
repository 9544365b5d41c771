package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"discussfront/internal/model"
)

const (
	// NoticeCachePrefix is the key prefix for per-session notices
	NoticeCachePrefix = "notices:session:"

	// NoticeCacheCap is the maximum number of notices kept per session
	NoticeCacheCap = 50

	// DefaultNoticeTTL is how long undelivered notices are kept
	DefaultNoticeTTL = 10 * time.Minute
)

// NoticeCache holds transient notices per viewer session until they are read.
type NoticeCache interface {
	// Push stores a notice for a session.
	// Uses pipeline: ZADD + ZREMRANGEBYRANK (maintain cap) + EXPIRE (refresh TTL)
	Push(ctx context.Context, sessionID string, n model.Notice) error

	// Drain returns the session's notices, oldest first, and removes them.
	Drain(ctx context.Context, sessionID string) ([]model.Notice, error)

	// Size returns the number of notices waiting for a session.
	Size(ctx context.Context, sessionID string) (int64, error)
}

// RedisNoticeCache implements NoticeCache using Redis Sorted Sets scored by
// creation time in milliseconds.
type RedisNoticeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNoticeCache creates a new NoticeCache backed by Redis.
func NewNoticeCache(client *redis.Client, ttl time.Duration) NoticeCache {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &RedisNoticeCache{client: client, ttl: ttl}
}

func noticeKey(sessionID string) string {
	return NoticeCachePrefix + sessionID
}

// Push adds a notice using a pipeline: ZADD + ZREMRANGEBYRANK + EXPIRE.
func (c *RedisNoticeCache) Push(ctx context.Context, sessionID string, n model.Notice) error {
	key := noticeKey(sessionID)
	startTime := time.Now()

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(n.CreatedAt.UnixMilli()),
		Member: string(data),
	})
	// Keep the newest NoticeCacheCap entries
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-NoticeCacheCap-1))
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[NoticeCache] Push FAILED: session=%s notice=%s err=%v", sessionID, n.ID, err)
		return fmt.Errorf("push notice: %w", err)
	}

	log.Printf("[NoticeCache] Push OK: session=%s notice=%s action=%s duration=%v",
		sessionID, n.ID, n.Action, time.Since(startTime))
	return nil
}

// Drain reads and deletes the session's notices in one transaction.
func (c *RedisNoticeCache) Drain(ctx context.Context, sessionID string) ([]model.Notice, error) {
	key := noticeKey(sessionID)

	var rangeCmd *redis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.ZRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		log.Printf("[NoticeCache] Drain FAILED: session=%s err=%v", sessionID, err)
		return nil, fmt.Errorf("drain notices: %w", err)
	}

	members := rangeCmd.Val()
	notices := make([]model.Notice, 0, len(members))
	for _, m := range members {
		var n model.Notice
		if err := json.Unmarshal([]byte(m), &n); err != nil {
			log.Printf("[NoticeCache] Drain skip malformed: session=%s err=%v", sessionID, err)
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}

// Size returns the number of notices waiting for a session.
func (c *RedisNoticeCache) Size(ctx context.Context, sessionID string) (int64, error) {
	size, err := c.client.ZCard(ctx, noticeKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("get notice count: %w", err)
	}
	return size, nil
}

// MemoryNoticeCache is the NoticeCache used when no Redis is configured.
type MemoryNoticeCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memorySession
}

type memorySession struct {
	notices []model.Notice
	expires time.Time
}

func NewMemoryNoticeCache(ttl time.Duration) *MemoryNoticeCache {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &MemoryNoticeCache{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
	}
}

func (c *MemoryNoticeCache) Push(ctx context.Context, sessionID string, n model.Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	s, ok := c.sessions[sessionID]
	if !ok {
		s = &memorySession{}
		c.sessions[sessionID] = s
	}
	s.notices = append(s.notices, n)
	sort.SliceStable(s.notices, func(i, j int) bool {
		return s.notices[i].CreatedAt.Before(s.notices[j].CreatedAt)
	})
	if len(s.notices) > NoticeCacheCap {
		s.notices = s.notices[len(s.notices)-NoticeCacheCap:]
	}
	s.expires = now.Add(c.ttl)
	return nil
}

func (c *MemoryNoticeCache) Drain(ctx context.Context, sessionID string) ([]model.Notice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(c.now())
	s, ok := c.sessions[sessionID]
	if !ok {
		return []model.Notice{}, nil
	}
	delete(c.sessions, sessionID)
	return s.notices, nil
}

func (c *MemoryNoticeCache) Size(ctx context.Context, sessionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(c.now())
	if s, ok := c.sessions[sessionID]; ok {
		return int64(len(s.notices)), nil
	}
	return 0, nil
}

// sweep drops expired sessions. Callers hold c.mu.
func (c *MemoryNoticeCache) sweep(now time.Time) {
	for id, s := range c.sessions {
		if now.After(s.expires) {
			delete(c.sessions, id)
		}
	}
}
