package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultDedupTTL is how long a processed event id is remembered.
const DefaultDedupTTL = time.Hour

// Deduper remembers processed event ids. MarkProcessed atomically checks and marks
// eventID, returning true when it had already been marked.
type Deduper interface {
	MarkProcessed(ctx context.Context, eventID string) (alreadySeen bool, err error)
}

// MemoryDeduper is a process-local TTL set of event ids.
type MemoryDeduper struct {
	ttl      time.Duration
	mu       sync.Mutex
	seen     map[string]time.Time
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{
		ttl:      ttl,
		seen:     make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

func (d *MemoryDeduper) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.seen[eventID]; ok && now.Before(expires) {
		return true, nil
	}
	d.seen[eventID] = now.Add(d.ttl)
	return false, nil
}

// StartSweeper evicts expired ids every interval until Stop is called.
func (d *MemoryDeduper) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = d.ttl / 4
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopChan:
				return
			case <-ticker.C:
				if n := d.sweep(); n > 0 {
					log.Debug().Int("evicted", n).Msg("Swept expired webhook event ids")
				}
			}
		}
	}()
}

func (d *MemoryDeduper) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

func (d *MemoryDeduper) sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	n := 0
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
			n++
		}
	}
	return n
}

func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// RedisDeduper shares processed event ids across replicas using SET NX with a TTL.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "paybridge:webhook:event:"}
}

func (d *RedisDeduper) Key(eventID string) string {
	return d.prefix + eventID
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.Key(eventID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return !ok, nil
}
