package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if err := c.Set(ctx, "mapping:a", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "mapping:a")
	if err != nil || !hit {
		t.Fatalf("Get hit=%v err=%v", hit, err)
	}
	if string(data) != "payload" {
		t.Errorf("Get = %q, want payload", data)
	}

	if err := c.Delete(ctx, "mapping:a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "mapping:a"); hit {
		t.Error("entry should be gone after Delete")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should be a miss")
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	n, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d entries, want 3", n)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("entries should be gone after Clear")
	}
	if shards, _ := os.ReadDir(c.Dir()); len(shards) != 0 {
		t.Errorf("Clear left %d shard directories", len(shards))
	}
}

func TestFileCacheStats(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "mapping:a", []byte("ENSG1\tTP53"), time.Hour)
	_ = c.Set(ctx, "mapping:b", []byte("ENSG2\tBRCA1"), 0)
	_ = c.Set(ctx, "gmt:c", []byte("set\tdesc\tTP53"), time.Minute)

	now = now.Add(10 * time.Minute)
	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 3 || st.Expired != 1 || st.Bytes <= 0 {
		t.Errorf("Stats = %+v, want 3 entries with 1 expired", st)
	}

	if _, hit, _ := c.Get(ctx, "gmt:c"); hit {
		t.Error("expired entry should be a miss")
	}
	if st, _ := c.Stats(ctx); st.Entries != 2 || st.Expired != 0 {
		t.Errorf("Stats after eviction = %+v", st)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	httpKey := k.HTTPKey("biomart", "query")
	if httpKey != "http:biomart:query" {
		t.Errorf("HTTPKey unexpected: %s", httpKey)
	}

	mk1 := k.MappingKey("biomart", "hsapiens_gene_ensembl", []string{"ENSG1", "ENSG2"})
	mk2 := k.MappingKey("biomart", "hsapiens_gene_ensembl", []string{"ENSG1", "ENSG3"})
	if mk1 == mk2 {
		t.Error("Different ID batches should produce different keys")
	}
	mk3 := k.MappingKey("biomart", "mmusculus_gene_ensembl", []string{"ENSG1", "ENSG2"})
	if mk1 == mk3 {
		t.Error("Different datasets should produce different keys")
	}
	split1 := k.MappingKey("biomart", "ds", []string{"ab", "c"})
	split2 := k.MappingKey("biomart", "ds", []string{"a", "bc"})
	if split1 == split2 {
		t.Error("ID boundaries should be part of the key")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "lab:")

	if got := scoped.HTTPKey("biomart", "q"); got != "lab:http:biomart:q" {
		t.Errorf("ScopedKeyer HTTPKey unexpected: %s", got)
	}

	mk := scoped.MappingKey("biomart", "ds", []string{"x"})
	if len(mk) < 4 || mk[:4] != "lab:" {
		t.Errorf("ScopedKeyer MappingKey should be prefixed: %s", mk)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	scoped := NewScopedKeyer(nil, "prefix:")
	if key := scoped.HTTPKey("test", "key"); key != "prefix:http:test:key" {
		t.Errorf("Unexpected key with nil inner: %s", key)
	}
}

func TestRetryableError(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}

	err := Retryable(ErrNetwork)
	if err == nil {
		t.Fatal("Retryable should return wrapped error")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if err.Error() != ErrNetwork.Error() {
		t.Errorf("Error message should be preserved: %s", err.Error())
	}
	if IsRetryable(ErrNotFound) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("success: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return ErrNotFound
	})
	if err != ErrNotFound || calls != 1 {
		t.Errorf("non-retryable: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return Retryable(ErrNetwork)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("retry then succeed: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return Retryable(ErrNetwork)
	})
	if !IsRetryable(err) || calls != 3 {
		t.Errorf("exhausted: err=%v calls=%d", err, calls)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Second, func() error {
		return Retryable(ErrNetwork)
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}
