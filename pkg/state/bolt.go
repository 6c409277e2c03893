package state

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

// bucket holding all state entries.
var stateBucket = []byte("state")

// BoltOptions configures the embedded key/value backend.
type BoltOptions struct {
	// Path is the database file location.
	Path string
	// Compression enables zstd compression of stored values.
	Compression bool
	// CacheCapacity bounds the decoded-value cache. Zero disables caching.
	CacheCapacity int
}

// BoltBackend is the embedded key/value Backend, the default for durable
// single-node deployments. Values are optionally zstd-compressed and a
// bounded read cache keeps hot entries decoded.
type BoltBackend struct {
	db      *bolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	cacheCap int
	cacheMu  sync.Mutex
	cache    map[string][]byte
}

// NewBoltBackend opens (creating if needed) the database at opts.Path.
func NewBoltBackend(opts BoltOptions) (*BoltBackend, error) {
	db, err := bolt.Open(opts.Path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state bucket: %w", err)
	}

	b := &BoltBackend{db: db, cacheCap: opts.CacheCapacity}
	if opts.CacheCapacity > 0 {
		b.cache = make(map[string][]byte, opts.CacheCapacity)
	}
	if opts.Compression {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		b.encoder = enc
		b.decoder = dec
	}
	return b, nil
}

func (b *BoltBackend) encode(value []byte) []byte {
	if b.encoder == nil {
		return value
	}
	return b.encoder.EncodeAll(value, nil)
}

func (b *BoltBackend) decode(raw []byte) ([]byte, error) {
	if b.decoder == nil {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return cp, nil
	}
	return b.decoder.DecodeAll(raw, nil)
}

func (b *BoltBackend) cachePut(key string, value []byte) {
	if b.cache == nil {
		return
	}
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if len(b.cache) >= b.cacheCap {
		for k := range b.cache {
			delete(b.cache, k)
			break
		}
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b.cache[key] = cp
}

func (b *BoltBackend) cacheGet(key string) ([]byte, bool) {
	if b.cache == nil {
		return nil, false
	}
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	v, ok := b.cache[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

func (b *BoltBackend) cacheDrop(key string) {
	if b.cache == nil {
		return
	}
	b.cacheMu.Lock()
	delete(b.cache, key)
	b.cacheMu.Unlock()
}

// Set stores value under key.
func (b *BoltBackend) Set(_ context.Context, key string, value []byte) error {
	encoded := b.encode(value)
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), encoded)
	})
	if err != nil {
		return fmt.Errorf("bolt put: %w", err)
	}
	b.cachePut(key, value)
	return nil
}

// Get retrieves the value under key.
func (b *BoltBackend) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := b.cacheGet(key); ok {
		return v, nil
	}

	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stateBucket).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		raw = make([]byte, len(v))
		copy(raw, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	value, err := b.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode value for %s: %w", key, err)
	}
	b.cachePut(key, value)
	return value, nil
}

// Delete removes the value under key.
func (b *BoltBackend) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(stateBucket)
		if bk.Get([]byte(key)) != nil {
			existed = true
		}
		return bk.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("bolt delete: %w", err)
	}
	b.cacheDrop(key)
	return existed, nil
}

// ListKeys returns every key starting with prefix, in byte order.
func (b *BoltBackend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(stateBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt scan: %w", err)
	}
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (b *BoltBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := b.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(stateBucket)
		for _, k := range keys {
			if err := bk.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt delete prefix: %w", err)
	}
	for _, k := range keys {
		b.cacheDrop(k)
	}
	return len(keys), nil
}

// Stats reports key and byte counts from a full scan.
func (b *BoltBackend) Stats(_ context.Context) (BackendStats, error) {
	stats := BackendStats{Name: "bolt"}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).ForEach(func(k, v []byte) error {
			stats.Keys++
			stats.Bytes += int64(len(v))
			return nil
		})
	})
	if err != nil {
		return BackendStats{}, fmt.Errorf("bolt stats: %w", err)
	}
	return stats, nil
}

// Close closes the database file.
func (b *BoltBackend) Close() error {
	if b.encoder != nil {
		_ = b.encoder.Close()
	}
	if b.decoder != nil {
		b.decoder.Close()
	}
	return b.db.Close()
}
