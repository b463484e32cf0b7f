package analytics

import (
	"context"
	"errors"

	"shorturl-analytics/cache"
	"shorturl-analytics/logging"
	"shorturl-analytics/models"
)

// CachingFetcher serves repeated URLs from a RecordCache. Cache failures are
// logged and fall through to the wrapped fetcher.
type CachingFetcher struct {
	next  Fetcher
	cache cache.RecordCache
}

func NewCachingFetcher(next Fetcher, c cache.RecordCache) *CachingFetcher {
	return &CachingFetcher{next: next, cache: c}
}

func (f *CachingFetcher) Fetch(ctx context.Context, shortURL string) (models.AnalyticsRecord, error) {
	rec, err := f.cache.Get(shortURL)
	if err == nil {
		logging.DebugLogger.Printf("analytics cache hit for %s", shortURL)
		return rec, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logging.ErrorLogger.Printf("analytics cache read for %s: %v", shortURL, err)
	}

	rec, err = f.next.Fetch(ctx, shortURL)
	if err != nil {
		return rec, err
	}
	if err := f.cache.Set(shortURL, rec); err != nil {
		logging.ErrorLogger.Printf("analytics cache write for %s: %v", shortURL, err)
	}
	return rec, nil
}
