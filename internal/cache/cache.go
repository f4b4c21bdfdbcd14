package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

const fileExt = ".wav"

// Cache is a disk-backed LRU cache for synthesized turn clips.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	log      *slog.Logger
	entries  map[string]*entry
}

type entry struct {
	size       int64
	accessedAt time.Time
	path       string
}

// New creates a Cache that stores files in dir with a total size cap of maxBytes.
// It creates dir if it does not exist and indexes clips left by earlier runs.
func New(dir string, maxBytes int64, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		log:      logger.With("component", "cache"),
		entries:  make(map[string]*entry),
	}
	c.loadExisting()
	return c, nil
}

// Get returns cached data for key and true on hit, or nil and false on miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		c.log.Warn("cache file unreadable, removing entry", "key", key, "error", err)
		delete(c.entries, key)
		return nil, false
	}

	e.accessedAt = time.Now()
	return data, true
}

// Put stores data under key, evicting least-recently-used entries if necessary.
// Entries larger than maxBytes are skipped.
func (c *Cache) Put(key string, data []byte) error {
	newSize := int64(len(data))
	if newSize > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		os.Remove(old.path)
		delete(c.entries, key)
	}

	c.evict(newSize)

	p := filepath.Join(c.dir, key+fileExt)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: commit: %w", err)
	}

	c.entries[key] = &entry{
		size:       newSize,
		accessedAt: time.Now(),
		path:       p,
	}
	return nil
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key produces a deterministic SHA-256 hex key for one synthesized turn.
// variant identifies backend settings that change the audio (backend name,
// model, tuning).
func Key(variant, voiceID, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "variant=%s\nvoice=%s\ntext=%s\n", variant, voiceID, text)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// totalSize returns the sum of all entry sizes. Must be called with mu held.
func (c *Cache) totalSize() int64 {
	var total int64
	for _, e := range c.entries {
		total += e.size
	}
	return total
}

// evict removes least-recently-used entries until totalSize + needed <= maxBytes.
// Must be called with mu held.
func (c *Cache) evict(needed int64) {
	total := c.totalSize()
	for total+needed > c.maxBytes {
		oldest := c.oldestKey()
		if oldest == "" {
			break
		}
		e := c.entries[oldest]
		os.Remove(e.path)
		delete(c.entries, oldest)
		total -= e.size
		c.log.Debug("evicted cache entry", "key", oldest, "size", e.size)
	}
}

// oldestKey returns the key with the earliest accessedAt. Must be called with mu held.
func (c *Cache) oldestKey() string {
	var oldest string
	var oldestTime time.Time
	for k, e := range c.entries {
		if oldest == "" || e.accessedAt.Before(oldestTime) {
			oldest = k
			oldestTime = e.accessedAt
		}
	}
	return oldest
}

// loadExisting scans dir for clips and rebuilds the index from mod times.
func (c *Cache) loadExisting() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		c.log.Warn("cache: glob existing files", "error", err)
		return
	}
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(filepath.Base(p), fileExt)
		c.entries[key] = &entry{
			size:       info.Size(),
			accessedAt: info.ModTime(),
			path:       p,
		}
	}
	if len(c.entries) > 0 {
		c.log.Info("loaded existing cache entries", "count", len(c.entries), "total_bytes", c.totalSize())
		c.evict(0)
	}
}

// Synthesizer serves repeated turns from the cache and stores fresh ones.
type Synthesizer struct {
	next    tts.Synthesizer
	cache   *Cache
	variant string
}

// NewSynthesizer wraps next with cache. variant is folded into every key.
func NewSynthesizer(next tts.Synthesizer, cache *Cache, variant string) *Synthesizer {
	return &Synthesizer{next: next, cache: cache, variant: variant}
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	variant := s.variant
	if tuning, ok := tts.TuningFrom(ctx); ok {
		if k := tuning.Key(); k != "" {
			variant += "/" + k
		}
	}
	key := Key(variant, voiceID, text)
	if data, ok := s.cache.Get(key); ok {
		s.cache.log.Debug("cache hit", "key", key, "voice_id", voiceID)
		return data, nil
	}

	data, err := s.next.Synthesize(ctx, text, voiceID)
	if err != nil || len(data) == 0 {
		return data, err
	}
	if err := s.cache.Put(key, data); err != nil {
		s.cache.log.Warn("failed to store in cache", "key", key, "error", err)
	}
	return data, nil
}
