package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey("openai", "gpt-4o-mini", "system", "user")
	b := CacheKey("openai", "gpt-4o-mini", "system", "user")
	if a != b {
		t.Errorf("expected identical keys, got %s and %s", a, b)
	}
	if len(a) != len(KeyPrefix)+64 {
		t.Errorf("unexpected key length %d", len(a))
	}
}

func TestCacheKey_PartBoundaries(t *testing.T) {
	if CacheKey("ab", "c") == CacheKey("a", "bc") {
		t.Error("keys for different part splits must differ")
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	buf := []byte(`{"a":1}`)
	if err := c.Set("k", buf, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	buf[0] = 'X'

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != `{"a":1}` {
		t.Errorf("cached value was aliased: %s", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2025, 5, 7, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := CacheKey("x")
	if err := c.Set(key, []byte(`{"text":"Quiz 1"}`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != `{"text":"Quiz 1"}` {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
}

func TestDiskCache_RejectsNonJSON(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Set("k", []byte("not json"), 0); err == nil {
		t.Error("expected error for non-JSON value")
	}
}

func TestDiskCache_CorruptFileIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	if err := os.WriteFile(filepath.Join(dir, "k.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected corrupt entry to miss")
	}
}

func TestDiskCache_DeleteAndClear(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete("missing"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
	_ = c.Set("a", []byte("1"), 0)
	_ = c.Set("b", []byte("2"), 0)
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayered(mem, disk)

	if err := disk.Set("k", []byte(`"v"`), 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.Get("k"); ok {
		t.Fatal("memory should start empty")
	}
	if got, ok := c.Get("k"); !ok || string(got) != `"v"` {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := mem.Get("k"); !ok {
		t.Error("disk hit should be promoted into memory")
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewLayeredCache(time.Minute, t.TempDir(), time.Hour)
	type payload struct {
		Text string `json:"text"`
	}
	if err := SetJSON(c, "k", payload{Text: "Lab 2"}, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var got payload
	if !GetJSON(c, "k", &got) || got.Text != "Lab 2" {
		t.Errorf("GetJSON = %+v", got)
	}
	if GetJSON(nil, "k", &got) {
		t.Error("nil cache must miss")
	}
}
