package pipeline

import (
	"time"

	"shorturl-analytics/analytics"
	"shorturl-analytics/batcher"
	"shorturl-analytics/cache"
	"shorturl-analytics/source"
)

type options struct {
	scroller  source.Scroller
	fetcher   analytics.Fetcher
	reader    source.Reader
	cache     cache.RecordCache
	listeners []batcher.Listener
	clock     func() time.Time
}

type Option func(*options)

// WithScroller supplies the search client an index source scrolls with.
func WithScroller(s source.Scroller) Option {
	return func(o *options) { o.scroller = s }
}

// WithFetcher replaces the HTTP analytics client.
func WithFetcher(f analytics.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithReader replaces the source built from the configuration.
func WithReader(r source.Reader) Option {
	return func(o *options) { o.reader = r }
}

// WithCache puts a read-through cache in front of the fetcher.
func WithCache(c cache.RecordCache) Option {
	return func(o *options) { o.cache = c }
}

// WithListener adds a bulk listener next to the logging, stats and Sentry
// listeners.
func WithListener(l batcher.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}
