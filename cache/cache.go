package cache

import (
	"errors"
	"time"

	"shorturl-analytics/models"

	"github.com/allegro/bigcache"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCacheMiss is returned by Get when the key is not cached.
var ErrCacheMiss = errors.New("cache: miss")

// RecordCache stores analytics records keyed by short URL.
type RecordCache interface {
	Set(key string, value models.AnalyticsRecord) error
	Get(key string) (models.AnalyticsRecord, error)
	Close() error
}

// BigCacheStore is an in-process RecordCache backed by BigCache.
type BigCacheStore struct {
	cache *bigcache.BigCache
}

// NewBigCacheStore returns a store whose entries live for ttl.
func NewBigCacheStore(ttl time.Duration) (*BigCacheStore, error) {
	config := bigcache.Config{
		Shards:             256,
		LifeWindow:         ttl,
		CleanWindow:        ttl,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       1024,
		HardMaxCacheSize:   64,
		Verbose:            false,
	}
	bc, err := bigcache.NewBigCache(config)
	if err != nil {
		return nil, err
	}
	return &BigCacheStore{cache: bc}, nil
}

// Set stores a value in the cache.
func (b *BigCacheStore) Set(key string, value models.AnalyticsRecord) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return b.cache.Set(key, data)
}

// Get retrieves a value from the cache.
func (b *BigCacheStore) Get(key string) (models.AnalyticsRecord, error) {
	data, err := b.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return models.AnalyticsRecord{}, ErrCacheMiss
	}
	if err != nil {
		return models.AnalyticsRecord{}, err
	}
	var value models.AnalyticsRecord
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return models.AnalyticsRecord{}, err
	}
	return value, nil
}

// Close resets the cache.
func (b *BigCacheStore) Close() error {
	return b.cache.Reset()
}
