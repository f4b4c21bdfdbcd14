package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

func newCache(t *testing.T, maxBytes int64) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, maxBytes, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, dir
}

func TestPutAndGet(t *testing.T) {
	c, dir := newCache(t, 1024*1024)

	data := []byte("RIFF fake clip")
	if err := c.Put("key1", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("Get returned false, want true")
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
	if _, err := os.Stat(filepath.Join(dir, "key1.wav")); err != nil {
		t.Errorf("clip file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "key1.wav.tmp")); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newCache(t, 1024*1024)
	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("Get returned true for nonexistent key")
	}
}

func TestEvictionLRU(t *testing.T) {
	c, _ := newCache(t, 100)

	if err := c.Put("a", make([]byte, 60)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := c.Put("b", make([]byte, 60)); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if _, ok := c.Get("a"); ok {
		t.Error("key 'a' should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("key 'b' should still exist")
	}
}

func TestEvictionOrder(t *testing.T) {
	c, _ := newCache(t, 150)

	c.Put("old", make([]byte, 50))
	time.Sleep(2 * time.Millisecond)
	c.Put("mid", make([]byte, 50))
	time.Sleep(2 * time.Millisecond)

	c.Get("old")
	c.Put("new", make([]byte, 60))

	if _, ok := c.Get("mid"); ok {
		t.Error("key 'mid' should have been evicted (least recently accessed)")
	}
	if _, ok := c.Get("old"); !ok {
		t.Error("key 'old' should still exist (recently accessed)")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("key 'new' should exist")
	}
}

func TestPutOversized(t *testing.T) {
	c, _ := newCache(t, 50)

	if err := c.Put("big", make([]byte, 100)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := c.Get("big"); ok {
		t.Error("oversized entry should not be cached")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newCache(t, 1024*1024)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key("elevenlabs/m1", "voice", "text")
			c.Put(key, make([]byte, 100))
			c.Get(key)
		}()
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestKey(t *testing.T) {
	base := Key("elevenlabs/m1", "v1", "hello")
	if base != Key("elevenlabs/m1", "v1", "hello") {
		t.Error("same input produced different keys")
	}
	for name, other := range map[string]string{
		"text":    Key("elevenlabs/m1", "v1", "world"),
		"voice":   Key("elevenlabs/m1", "v2", "hello"),
		"variant": Key("deepgram", "v1", "hello"),
	} {
		if other == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestLoadExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "abc123.wav"), []byte("audio data"), 0o644)
	os.WriteFile(filepath.Join(dir, "ignored.pcm"), []byte("legacy"), 0o644)

	c, err := New(dir, 1024*1024, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, ok := c.Get("abc123")
	if !ok || string(got) != "audio data" {
		t.Errorf("abc123 = %q, %v; want loaded entry", got, ok)
	}
	if _, ok := c.Get("ignored"); ok {
		t.Error("non-wav files should not be indexed")
	}
}

func TestLoadExistingEvictsOverCapacity(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "aaa.wav"), make([]byte, 50), 0o644)
	os.WriteFile(filepath.Join(dir, "bbb.wav"), make([]byte, 50), 0o644)
	os.WriteFile(filepath.Join(dir, "ccc.wav"), make([]byte, 50), 0o644)

	c, err := New(dir, 100, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.mu.Lock()
	total := c.totalSize()
	c.mu.Unlock()
	if total > 100 {
		t.Errorf("totalSize after loadExisting = %d, want <= 100", total)
	}
	if c.Len() > 2 {
		t.Errorf("entry count = %d, want <= 2", c.Len())
	}
}

func TestStaleFileCleanup(t *testing.T) {
	c, dir := newCache(t, 1024*1024)

	c.Put("stale", []byte("data"))
	os.Remove(filepath.Join(dir, "stale.wav"))

	if _, ok := c.Get("stale"); ok {
		t.Error("Get should return false for deleted file")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want stale entry removed", c.Len())
	}
}

type countingSynth struct {
	calls int
	data  []byte
	err   error
}

func (s *countingSynth) Synthesize(_ context.Context, text, voiceID string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte(voiceID+":"), s.data...), nil
}

func TestSynthesizerServesRepeatsFromCache(t *testing.T) {
	c, _ := newCache(t, 1024*1024)
	next := &countingSynth{data: []byte("clip")}
	s := NewSynthesizer(next, c, "stub")

	for i := 0; i < 3; i++ {
		data, err := s.Synthesize(context.Background(), "hello", "v1")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(data) != "v1:clip" {
			t.Errorf("data = %q", data)
		}
	}
	if next.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", next.calls)
	}

	if _, err := s.Synthesize(context.Background(), "hello", "v2"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("different voice should miss the cache; upstream calls = %d", next.calls)
	}
}

func TestSynthesizerDoesNotCacheFailures(t *testing.T) {
	c, _ := newCache(t, 1024*1024)
	boom := errors.New("boom")
	next := &countingSynth{err: boom}
	s := NewSynthesizer(next, c, "stub")

	if _, err := s.Synthesize(context.Background(), "hello", "v1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("failed synthesis was cached")
	}
}

func TestSynthesizerKeysOnRequestTuning(t *testing.T) {
	c, _ := newCache(t, 1024*1024)
	next := &countingSynth{data: []byte("clip")}
	s := NewSynthesizer(next, c, "elevenlabs/m/en")

	stability := 0.9
	tuned := tts.WithTuning(context.Background(), tts.Tuning{Stability: &stability})
	for _, ctx := range []context.Context{context.Background(), tuned, tuned, context.Background()} {
		if _, err := s.Synthesize(ctx, "hello", "v1"); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("upstream calls = %d, want one per tuning", next.calls)
	}

	empty := tts.WithTuning(context.Background(), tts.Tuning{})
	if _, err := s.Synthesize(empty, "hello", "v1"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("empty tuning should share the untuned entry; upstream calls = %d", next.calls)
	}
}
