// Package source yields the short URLs a scan walks through. Every Open
// starts a fresh, finite pass; nothing is carried between scans.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shorturl-analytics/config"
)

// Reader opens a new pass over the configured URLs.
type Reader interface {
	Name() string
	Open(ctx context.Context) (Cursor, error)
}

// Cursor walks one pass. Next returns io.EOF once the pass is exhausted.
type Cursor interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// SourceError reports a failure reading the source itself.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }

func (e *SourceError) Unwrap() error { return e.Err }

// NormalizeURL prefixes http:// to URLs that do not already carry an http or
// https scheme.
func NormalizeURL(u string) string {
	if strings.HasPrefix(strings.ToLower(u), "http") {
		return u
	}
	return "http://" + u
}

// New builds the Reader described by cfg. The scroller is only needed for
// index sources.
func New(cfg config.SourceConfig, scroller Scroller) (Reader, error) {
	switch cfg.Type {
	case config.SourceFile:
		r, err := NewFileSource(cfg.FilePath)
		if err != nil {
			return nil, &config.ConfigError{Field: "source.filePath", Reason: "invalid path name", Err: err}
		}
		return r, nil
	case config.SourceIndex:
		if scroller == nil {
			return nil, &config.ConfigError{Field: "source", Reason: "index source needs a search client"}
		}
		return NewIndexSource(scroller, IndexQuery{
			Index:     cfg.IndexName,
			Type:      cfg.IndexType,
			Field:     cfg.URLField,
			PageSize:  cfg.PageSize,
			KeepAlive: cfg.KeepAlive.D(),
		}), nil
	default:
		return nil, &config.ConfigError{Field: "source.type", Reason: fmt.Sprintf("unknown source type %q", cfg.Type)}
	}
}

func keepAliveOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}
