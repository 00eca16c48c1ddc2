// Package inbox holds the most recently received images per conversation
// key, awaiting a follow-up edit command.
//
// Known limitation: when an exact key misses, lookup falls back to
// prefix/suffix and split-key scans. Users sharing partial ids can in rare
// cases hit each other's cached image. This mirrors the platform's
// best-effort identity model and is accepted for a single trusted process.
package inbox

import (
	"bytes"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// minImageBytes rejects obvious garbage payloads before decoding.
const minImageBytes = 100

type entry struct {
	payload  [][]byte
	storedAt time.Time
}

// Cache is a short-lived store of inbound raw image bytes. Expiry is lazy on
// the read path; Sweep removes expired entries eagerly.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put validates and stores an image payload, overwriting any previous entry
// for the key. Invalid payloads are dropped silently (logged only).
func (c *Cache) Put(key string, payload [][]byte) bool {
	if len(payload) == 0 {
		return false
	}
	for _, buf := range payload {
		if err := validateImage(buf); err != nil {
			log.Printf("inbox: rejecting payload for %s: %v", key, err)
			return false
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{payload: payload, storedAt: c.now()}
	return true
}

// Get returns the first buffer of a fresh entry for the exact key, or nil.
func (c *Cache) Get(key string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstFresh(key)
}

// Lookup runs the full fallback chain: exact key, group-scoped
// reconstruction from ambient context, prefix/suffix scan, then the parts of
// a compound key tried individually. The cache entry is not consumed.
func (c *Cache) Lookup(key, groupID, senderID string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if data := c.firstFresh(key); data != nil {
		return data
	}

	if groupID != "" && senderID != "" {
		if data := c.firstFresh(fmt.Sprintf("%s_%s", groupID, senderID)); data != nil {
			return data
		}
	}

	prefix := key + "_"
	suffix := "_" + key
	for cached := range c.entries {
		if strings.HasPrefix(cached, prefix) || strings.HasSuffix(cached, suffix) {
			if data := c.firstFresh(cached); data != nil {
				return data
			}
		}
	}

	if strings.Contains(key, "_") {
		for _, part := range strings.Split(key, "_") {
			if data := c.firstFresh(part); data != nil {
				return data
			}
		}
	}

	return nil
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// firstFresh must be called with the lock held.
func (c *Cache) firstFresh(key string) []byte {
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		return nil
	}
	if len(e.payload) == 0 {
		return nil
	}
	return e.payload[0]
}

func validateImage(buf []byte) error {
	if len(buf) < minImageBytes {
		return fmt.Errorf("payload too small (%d bytes)", len(buf))
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("not a decodable image: %w", err)
	}
	return nil
}
