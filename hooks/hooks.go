// Package hooks provides production-ready Hook, Logger, and metrics
// implementations for the loader.
package hooks

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argonlabs/imageload/core"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewDefaultLogger returns a SlogLogger writing text to stderr at the given
// level ("debug", "info", "warn", "error"; anything else means info).
func NewDefaultLogger(level string) *SlogLogger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	return NewSlogLogger(slog.New(h))
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs the lifecycle of every load.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeLoad(_ context.Context, req core.DecodeRequest) {
	h.logger.Debug("load.start",
		"source", req.Source,
		"key", req.Key(),
		"target_w", req.Options.TargetWidth,
		"target_h", req.Options.TargetHeight,
	)
}

func (h *LoggingHook) AfterLoad(_ context.Context, req core.DecodeRequest, st core.State, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("load.failed",
			"source", req.Source,
			"key", req.Key(),
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	fields := []interface{}{
		"source", req.Source,
		"key", req.Key(),
		"phase", st.Phase().String(),
		"duration_ms", d.Milliseconds(),
	}
	if s, ok := st.(core.Success); ok && s.Result != nil {
		fields = append(fields,
			"width", s.Result.Width,
			"height", s.Result.Height,
			"from_cache", s.FromCache,
		)
	}
	h.logger.Debug("load.done", fields...)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates loader metrics; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	decodeDurationsMs map[string]int64 // cumulative ms per format
	decodeCalls       map[string]int64
	errors            map[string]int64 // per category

	cacheHits    int64
	cacheMisses  int64
	bitmapBytesB int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		decodeDurationsMs: make(map[string]int64),
		decodeCalls:       make(map[string]int64),
		errors:            make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordDecodeTime(format string, d time.Duration) {
	ms := d.Milliseconds()
	m.mu.Lock()
	m.decodeDurationsMs[format] += ms
	m.decodeCalls[format]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCacheHit()  { atomic.AddInt64(&m.cacheHits, 1) }
func (m *InMemoryMetrics) RecordCacheMiss() { atomic.AddInt64(&m.cacheMisses, 1) }

func (m *InMemoryMetrics) RecordBitmapBytes(bytes int64) {
	atomic.AddInt64(&m.bitmapBytesB, bytes)
}

func (m *InMemoryMetrics) RecordError(_ string, category string) {
	m.mu.Lock()
	m.errors[category]++
	m.mu.Unlock()
}

var _ core.MetricsCollector = (*InMemoryMetrics)(nil)

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	DecodeDurationsMs map[string]int64
	DecodeCalls       map[string]int64
	Errors            map[string]int64
	CacheHits         int64
	CacheMisses       int64
	BitmapBytes       int64
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		DecodeDurationsMs: make(map[string]int64, len(m.decodeDurationsMs)),
		DecodeCalls:       make(map[string]int64, len(m.decodeCalls)),
		Errors:            make(map[string]int64, len(m.errors)),
		CacheHits:         atomic.LoadInt64(&m.cacheHits),
		CacheMisses:       atomic.LoadInt64(&m.cacheMisses),
		BitmapBytes:       atomic.LoadInt64(&m.bitmapBytesB),
	}
	for k, v := range m.decodeDurationsMs {
		snap.DecodeDurationsMs[k] = v
	}
	for k, v := range m.decodeCalls {
		snap.DecodeCalls[k] = v
	}
	for k, v := range m.errors {
		snap.Errors[k] = v
	}
	return snap
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds load outcomes into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeLoad(_ context.Context, _ core.DecodeRequest) {}

func (h *MetricsHook) AfterLoad(_ context.Context, _ core.DecodeRequest, _ core.State, _ time.Duration, err error) {
	if err != nil {
		h.collector.RecordError("load", "load")
	}
}
