package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"shorturl-analytics/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger instances for different log levels
var (
	AuditLogger = log.New(os.Stderr, "AUDIT: ", log.LstdFlags)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
)

var debug atomic.Bool

// DebugEnabled reports whether debug diagnostics (per-item bulk failures,
// skipped hits) are being written.
func DebugEnabled() bool { return debug.Load() }

// Init points the loggers at their destinations. With cfg.Dir set, each level
// gets its own rotating file under Dir and is mirrored to stderr.
func Init(cfg config.LogConfig) (io.Closer, error) {
	debug.Store(cfg.Debug)
	if cfg.Dir == "" {
		AuditLogger.SetOutput(os.Stderr)
		ErrorLogger.SetOutput(os.Stderr)
		if cfg.Debug {
			DebugLogger.SetOutput(os.Stderr)
		} else {
			DebugLogger.SetOutput(io.Discard)
		}
		return nopCloser{}, nil
	}

	files := closers{}
	open := func(level string) (*lumberjack.Logger, error) {
		dir := filepath.Join(cfg.Dir, level)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("could not create log directory %s: %w", dir, err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, level+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		files = append(files, lj)
		return lj, nil
	}

	auditLog, err := open("audit")
	if err != nil {
		return nil, err
	}
	errorLog, err := open("error")
	if err != nil {
		return nil, err
	}
	AuditLogger.SetOutput(io.MultiWriter(os.Stderr, auditLog))
	ErrorLogger.SetOutput(io.MultiWriter(os.Stderr, errorLog))

	if cfg.Debug {
		debugLog, err := open("debug")
		if err != nil {
			return nil, err
		}
		DebugLogger.SetOutput(debugLog)
	} else {
		DebugLogger.SetOutput(io.Discard)
	}
	return files, nil
}

type closers []*lumberjack.Logger

func (c closers) Close() error {
	var first error
	for _, lj := range c {
		if err := lj.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
