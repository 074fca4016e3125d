package cache

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(filepath.Join(t.TempDir(), "ksm_cache.bin"))
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}

	if _, err := c.GetCachedValue(); err == nil {
		t.Error("expected error before first save")
	}

	blob := append(make([]byte, 32), []byte("ciphertext")...)
	if err := c.SaveCachedValue(blob); err != nil {
		t.Fatalf("SaveCachedValue() error = %v", err)
	}
	got, err := c.GetCachedValue()
	if err != nil {
		t.Fatalf("GetCachedValue() error = %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Error("cached value mismatch")
	}

	if err := c.Purge(); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if _, err := c.GetCachedValue(); err == nil {
		t.Error("expected error after purge")
	}
	// Purging twice is fine.
	if err := c.Purge(); err != nil {
		t.Errorf("second Purge() error = %v", err)
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	if _, err := c.GetCachedValue(); err == nil {
		t.Error("expected error before first save")
	}
	if err := c.SaveCachedValue([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetCachedValue()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Errorf("got %q", got)
	}
	_ = c.Purge()
	if _, err := c.GetCachedValue(); err == nil {
		t.Error("expected error after purge")
	}
}
