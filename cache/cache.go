// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the keyed, TTL'd, file-backed store that memoizes
// WHOIS and threat-intel results between scans.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const entryExt = ".entry"

// ErrMiss is returned by Get when no valid entry exists for the key.
var ErrMiss = errors.New("cache miss")

// Cache is a namespaced file-per-entry store. Entries are written atomically
// and expired on read; no background sweep is performed.
type Cache struct {
	sync.Mutex
	dir    string
	ttl    time.Duration
	log    *slog.Logger
	flight map[string]*call
}

type call struct {
	done chan struct{}
	data json.RawMessage
	err  error
}

type entry struct {
	CreatedAt  int64           `json:"created_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	Payload    json.RawMessage `json:"payload"`
}

// Stats summarizes the state of the on-disk store.
type Stats struct {
	TotalEntries   int    `json:"total_entries"`
	ExpiredEntries int    `json:"expired_entries"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	Dir            string `json:"cache_dir"`
}

// New returns a Cache rooted at dir with the provided default TTL.
func New(dir string, ttl time.Duration, log *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create the cache directory: %s: %v", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Cache{
		dir:    dir,
		ttl:    ttl,
		log:    log,
		flight: make(map[string]*call),
	}, nil
}

// TTL returns the default time-to-live applied by Put.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) path(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, namespace, name[:2], name+entryExt)
}

// Get reads the entry for (namespace, key) into v. ErrMiss is returned when
// the entry is absent or expired; expired and corrupted entries are removed.
func (c *Cache) Get(namespace, key string, v interface{}) error {
	path := c.path(namespace, key)

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrMiss
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.log.Warn("Removing a corrupted cache entry", "namespace", namespace, "path", path)
		_ = os.Remove(path)
		return ErrMiss
	}
	if time.Now().Unix() > e.CreatedAt+e.TTLSeconds {
		_ = os.Remove(path)
		return ErrMiss
	}
	return json.Unmarshal(e.Payload, v)
}

// Put writes the entry for (namespace, key) with the provided TTL. A
// non-positive ttl selects the cache default. The write is atomic.
func (c *Cache) Put(namespace, key string, v interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal the cache payload: %v", err)
	}
	data, err := json.Marshal(&entry{
		CreatedAt:  time.Now().Unix(),
		TTLSeconds: int64(ttl.Seconds()),
		Payload:    payload,
	})
	if err != nil {
		return err
	}

	path := c.path(namespace, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "entry")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Do returns the cached value for (namespace, key) or executes fetch to
// obtain and store it. Concurrent callers for the same key share a single
// in-flight fetch. Nothing is cached when the fetch fails or the context
// has been cancelled.
func (c *Cache) Do(ctx context.Context, namespace, key string, v interface{},
	ttl time.Duration, fetch func(context.Context) (interface{}, error)) error {
	if err := c.Get(namespace, key, v); err == nil {
		return nil
	}

	id := namespace + "\x00" + key
	c.Lock()
	if f, found := c.flight[id]; found {
		c.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if f.err != nil {
			return f.err
		}
		return json.Unmarshal(f.data, v)
	}

	f := &call{done: make(chan struct{})}
	c.flight[id] = f
	c.Unlock()

	defer func() {
		c.Lock()
		delete(c.flight, id)
		c.Unlock()
		close(f.done)
	}()

	val, err := fetch(ctx)
	if err != nil {
		f.err = err
		return err
	}
	if ctx.Err() != nil {
		f.err = ctx.Err()
		return f.err
	}

	f.data, f.err = json.Marshal(val)
	if f.err != nil {
		return f.err
	}
	if err := c.Put(namespace, key, val, ttl); err != nil {
		c.log.Warn("Failed to write the cache entry", "namespace", namespace, "err", err)
	}
	return json.Unmarshal(f.data, v)
}

// ClearExpired removes all expired and corrupted entries, returning the
// number of files deleted.
func (c *Cache) ClearExpired() int {
	var count int
	now := time.Now().Unix()

	_ = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}

		remove := true
		if data, err := os.ReadFile(path); err == nil {
			var e entry
			if json.Unmarshal(data, &e) == nil && now <= e.CreatedAt+e.TTLSeconds {
				remove = false
			}
		}
		if remove && os.Remove(path) == nil {
			count++
		}
		return nil
	})
	return count
}

// Clear removes every entry in the store, returning the number deleted.
func (c *Cache) Clear() int {
	var count int

	_ = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}
		if os.Remove(path) == nil {
			count++
		}
		return nil
	})
	return count
}

// GetStats walks the store and summarizes entry counts and sizes.
func (c *Cache) GetStats() *Stats {
	stats := &Stats{Dir: c.dir}
	now := time.Now().Unix()

	_ = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != entryExt {
			return nil
		}

		stats.TotalEntries++
		stats.TotalSizeBytes += info.Size()

		expired := true
		if data, err := os.ReadFile(path); err == nil {
			var e entry
			if json.Unmarshal(data, &e) == nil && now <= e.CreatedAt+e.TTLSeconds {
				expired = false
			}
		}
		if expired {
			stats.ExpiredEntries++
		}
		return nil
	})
	return stats
}
