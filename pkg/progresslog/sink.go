// Package progresslog implements the progress/log sink collaborator
// interface from spec.md §6: narrative log lines plus per-file download
// status updates. Implementations must be safe to call from any
// goroutine.
package progresslog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the collaborator interface the core depends on. It is
// deliberately narrow so the presentation layer (CLI, GUI, tests) can be
// swapped freely.
type Sink interface {
	Log(message string)
	UpdateProgress(filename, status string)
}

// ZapSink is a Sink backed by a zap.SugaredLogger, following the
// encoder/level setup used by the reference pack's logger package.
type ZapSink struct {
	sugar *zap.SugaredLogger
}

// NewZapSink builds a ZapSink writing console-encoded lines to w at the
// given level. A parseable, non-empty FILEMESH_LOG_LEVEL (or, failing
// that, LOG_LEVEL) environment variable overrides level (the same
// env-var pattern as the reference pack's logger).
func NewZapSink(w zapcore.WriteSyncer, level zapcore.Level) *ZapSink {
	if levelStr := strings.TrimSpace(firstNonEmpty(os.Getenv("FILEMESH_LOG_LEVEL"), os.Getenv("LOG_LEVEL"))); levelStr != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(strings.ToLower(levelStr))); err == nil {
			level = parsed
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), w, level)
	logger := zap.New(core, zap.AddCaller())
	return &ZapSink{sugar: logger.Sugar()}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Log implements Sink.
func (z *ZapSink) Log(message string) {
	z.sugar.Info(message)
}

// UpdateProgress implements Sink.
func (z *ZapSink) UpdateProgress(filename, status string) {
	z.sugar.Infof("[progress] %s -> %s", filename, status)
}

// StdoutSink is a plain Sink that writes unadorned lines to w, with no
// structured encoding or levels. Intended for simple foreground/scripted
// use where zap's console encoding is more ceremony than the caller wants.
type StdoutSink struct {
	mu sync.Mutex
	w  *os.File
}

// NewStdoutSink builds a StdoutSink writing to w.
func NewStdoutSink(w *os.File) *StdoutSink {
	return &StdoutSink{w: w}
}

// Log implements Sink.
func (p *StdoutSink) Log(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, message)
}

// UpdateProgress implements Sink.
func (p *StdoutSink) UpdateProgress(filename, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[progress] %s -> %s\n", filename, status)
}

// MemorySink is an in-memory Sink used by tests: it records every log
// line and the latest status per filename under a mutex.
type MemorySink struct {
	mu       sync.Mutex
	Lines    []string
	Statuses map[string]string
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{Statuses: make(map[string]string)}
}

// Log implements Sink.
func (m *MemorySink) Log(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lines = append(m.Lines, message)
}

// UpdateProgress implements Sink.
func (m *MemorySink) UpdateProgress(filename, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses[filename] = status
}

// StatusOf returns the most recently recorded status for filename.
func (m *MemorySink) StatusOf(filename string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Statuses[filename]
}

// String renders every recorded line, useful in test failure messages.
func (m *MemorySink) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%d lines, statuses=%v", len(m.Lines), m.Statuses)
}
