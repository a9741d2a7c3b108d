// Package cache is a size-bounded, TTL-limited byte cache for computed page
// states. Large values are stored DEFLATE-compressed when that saves space.
package cache

import (
	"bytes"
	"compress/flate"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfedit/observability"
)

const (
	DefaultMaxSize    = 100 << 20
	DefaultMaxEntries = 1000
	DefaultThreshold  = 1 << 10
	DefaultTTL        = time.Hour
)

type Config struct {
	// MaxSize bounds the total stored size in bytes.
	MaxSize    int64
	MaxEntries int
	// Threshold is the size above which values are compressed.
	Threshold int
	TTL       time.Duration
	// Level is the flate level; zero means flate.BestSpeed.
	Level  int
	Clock  func() time.Time
	Logger observability.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Level == 0 {
		c.Level = flate.BestSpeed
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	c.Logger = observability.OrNop(c.Logger)
	return c
}

// Entry is a stored value. SizeBytes is the size of Payload as stored,
// compressed or not.
type Entry struct {
	Key         string
	Payload     []byte
	Compressed  bool
	Timestamp   time.Time
	AccessCount int
	SizeBytes   int64
}

type Stats struct {
	Entries   int
	Size      int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*Entry
	size    int64
	stats   Stats
}

func New(cfg Config) *Cache {
	return &Cache{cfg: cfg.withDefaults(), entries: make(map[string]*Entry)}
}

// Key derives a cache key from a page number and the encoded mutation set
// that produced the page state.
func Key(page int, parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "page:%d\n", page)
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Set stores value under key, replacing any previous value. Expired
// entries are evicted first, then least recently used ones while the cache
// is over its size or entry limit. A value larger than MaxSize on its own
// is not stored.
func (c *Cache) Set(key string, value []byte) {
	payload, compressed := c.encode(value)
	now := c.cfg.Clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.remove(old)
	}
	c.expire(now)
	for len(c.entries) > 0 && (c.size > c.cfg.MaxSize || len(c.entries) >= c.cfg.MaxEntries) {
		c.evictOne()
	}
	e := &Entry{
		Key:        key,
		Payload:    payload,
		Compressed: compressed,
		Timestamp:  now,
		SizeBytes:  int64(len(payload)),
	}
	if e.SizeBytes > c.cfg.MaxSize {
		c.cfg.Logger.Debug("cache value too large",
			observability.String("key", key),
			observability.Int64("size", e.SizeBytes))
		return
	}
	c.entries[key] = e
	c.size += e.SizeBytes
	for c.size > c.cfg.MaxSize {
		c.evictOne()
	}
}

// Get returns the value stored under key. Entries expire TTL after they
// were set regardless of access; expired entries are evicted and reported
// as misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.cfg.Clock()
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && now.Sub(e.Timestamp) > c.cfg.TTL {
		c.remove(e)
		c.stats.Expired++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}
	e.AccessCount++
	c.stats.Hits++
	payload, compressed := e.Payload, e.Compressed
	c.mu.Unlock()

	if !compressed {
		return append([]byte(nil), payload...), true
	}
	value, err := io.ReadAll(flate.NewReader(bytes.NewReader(payload)))
	if err != nil {
		c.cfg.Logger.Warn("cache entry corrupt", observability.String("key", key), observability.Error("error", err))
		c.Delete(key)
		return nil, false
	}
	return value, true
}

// Entry returns a copy of the stored entry without counting an access.
func (c *Cache) Entry(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Payload = append([]byte(nil), e.Payload...)
	return out, true
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.remove(e)
	}
	return ok
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.size = 0
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size is the total stored size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	s.Size = c.size
	return s
}

func (c *Cache) encode(value []byte) ([]byte, bool) {
	if len(value) <= c.cfg.Threshold {
		return append([]byte(nil), value...), false
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.cfg.Level)
	if err == nil {
		_, err = w.Write(value)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil || buf.Len() >= len(value) {
		return append([]byte(nil), value...), false
	}
	return buf.Bytes(), true
}

func (c *Cache) remove(e *Entry) {
	delete(c.entries, e.Key)
	c.size -= e.SizeBytes
}

func (c *Cache) expire(now time.Time) {
	for _, e := range c.entries {
		if now.Sub(e.Timestamp) > c.cfg.TTL {
			c.remove(e)
			c.stats.Expired++
		}
	}
}

// evictOne removes the least recently used entry: fewest accesses first,
// then oldest.
func (c *Cache) evictOne() {
	var victim *Entry
	for _, e := range c.entries {
		if victim == nil || less(e, victim) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	c.remove(victim)
	c.stats.Evictions++
}

func less(a, b *Entry) bool {
	if a.AccessCount != b.AccessCount {
		return a.AccessCount < b.AccessCount
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Key < b.Key
}
