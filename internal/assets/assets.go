// Package assets fetches model and texture sources from disk or HTTP.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Faultbox/objmodel/pkg/encoding"
)

// FetchError reports a source that could not be read.
type FetchError struct {
	Source string
	Status int // HTTP status, 0 for local files
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Manager resolves sources against search roots or HTTP(S) and caches the
// raw bytes.
type Manager struct {
	roots  []string
	client *http.Client
	cache  *Cache
	mu     sync.RWMutex
}

// NewManager creates a new asset manager. A nil client uses
// http.DefaultClient.
func NewManager(client *http.Client) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		client: client,
		cache:  NewCache(),
	}
}

// AddRoot adds a search directory for relative sources.
// Roots are searched in reverse order (last added = highest priority).
func (m *Manager) AddRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding root %s: not a directory", dir)
	}

	m.mu.Lock()
	m.roots = append(m.roots, dir)
	m.mu.Unlock()

	return nil
}

// IsRemote reports whether src is an HTTP(S) URL.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch returns the bytes of src. Failures are *FetchError.
func (m *Manager) Fetch(ctx context.Context, src string) ([]byte, error) {
	key := encoding.NormalizePath(src)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	var data []byte
	var err error
	if IsRemote(key) {
		data, err = m.fetchRemote(ctx, key)
	} else {
		data, err = m.fetchLocal(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	m.cache.Set(key, data)
	return data, nil
}

// Invalidate drops src from the cache so the next Fetch re-reads it.
func (m *Manager) Invalidate(src string) {
	m.cache.Delete(encoding.NormalizePath(src))
}

// Cache returns the manager's byte cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Resolve returns the local path src resolves to.
func (m *Manager) Resolve(src string) (string, error) {
	src = filepath.FromSlash(encoding.NormalizePath(src))
	if filepath.IsAbs(src) {
		return src, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.roots) - 1; i >= 0; i-- {
		path := filepath.Join(m.roots[i], src)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	return src, nil
}

func (m *Manager) fetchLocal(ctx context.Context, src string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}

	path, err := m.Resolve(src)
	if err != nil {
		return nil, &FetchError{Source: src, Err: fs.ErrNotExist}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}
	return data, nil
}

func (m *Manager) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: url, Err: err}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Source: url, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: url, Status: resp.StatusCode, Err: err}
	}
	return data, nil
}

// Close drops all cached data and search roots.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for fetched sources.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
