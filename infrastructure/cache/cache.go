// Package cache implements the optional offline replay cache: the last
// successful get_secret response stored as transmission_key || ciphertext so
// the client can answer reads when the network is down.
package cache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const component = "cache"

// DefaultFileName is used when no path is supplied.
const DefaultFileName = "ksm_cache.bin"

// Cache persists and replays a single opaque blob.
type Cache interface {
	SaveCachedValue(data []byte) error
	GetCachedValue() ([]byte, error)
	Purge() error
}

// FileCache stores the blob in one file, written under a process-local mutex
// and with the same owner-only permissions as the configuration file.
type FileCache struct {
	mu   sync.Mutex
	path string
}

// NewFileCache creates a file cache at path, or DefaultFileName in the
// working directory when path is empty.
func NewFileCache(path string) (*FileCache, error) {
	p := path
	if p == "" {
		p = DefaultFileName
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, component, "resolve cache path", err)
	}
	return &FileCache{path: abs}, nil
}

// Path returns the absolute path of the backing file.
func (c *FileCache) Path() string {
	return c.path
}

func (c *FileCache) SaveCachedValue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data == nil {
		data = []byte{}
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFile, component, "write cache file", err)
	}
	return nil
}

func (c *FileCache) GetCachedValue() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFile, component, "read cache file", err)
	}
	return data, nil
}

func (c *FileCache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFile, component, "remove cache file", err)
	}
	return nil
}

// MemoryCache keeps the blob in RAM. Useful in tests and short-lived
// processes that still want network fallback within one run.
type MemoryCache struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) SaveCachedValue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append([]byte(nil), data...)
	c.set = true
	return nil
}

func (c *MemoryCache) GetCachedValue() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return nil, errors.New(errors.ErrCodeFile, component, "no cached value")
	}
	return append([]byte(nil), c.data...), nil
}

func (c *MemoryCache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.set = false
	return nil
}
