package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// allowedPrefixes pass through the filter. A key equal to a prefix without its
// trailing dot also passes, so "error" is allowed alongside "error.type".
var allowedPrefixes = []string{
	"gitgraft.",
	"error.",
	"http.",
	"mcp.",
	"pipeline.",
	"bookmark.",
	"changeset.",
	"stage",
	"batch_size",
}

// blockedPrefixes are stripped even when an allowed prefix matches.
var blockedPrefixes = []string{
	"user.",
}

// blockedKeys are stripped exactly. Commit authors and message bodies of the
// imported history are personal data.
var blockedKeys = map[string]bool{
	"email":            true,
	"commit.author":    true,
	"commit.message":   true,
	"changeset.author": true,
	"request.body":     true,
	"response.body":    true,
}

// attributeFilter is a SpanProcessor that drops blocked or unknown span
// attributes before they reach the exporter.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger

	// warned holds keys already reported, so per-batch spans warn once per key.
	warned sync.Map
}

// NewAttributeFilter wraps delegate with the attribute allow-list. When logger is
// non-nil each dropped key is logged once at warn level.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd hands the delegate a filtered view; ended spans are read-only.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) allow(key string) bool {
	if !permitted(key) {
		f.warnOnce(key)

		return false
	}

	return true
}

func permitted(key string) bool {
	if blockedKeys[key] {
		return false
	}

	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}

	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(key, prefix) || key == strings.TrimSuffix(prefix, ".") {
			return true
		}
	}

	return false
}

func (f *attributeFilter) warnOnce(key string) {
	if f.logger == nil {
		return
	}

	if _, seen := f.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}

	f.logger.Warn("attribute blocked by filter", "key", key)
}

// filteredSpan is a ReadOnlySpan exposing only allowed attributes.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	orig := s.ReadOnlySpan.Attributes()
	kept := make([]attribute.KeyValue, 0, len(orig))

	for _, kv := range orig {
		if s.filter.allow(string(kv.Key)) {
			kept = append(kept, kv)
		}
	}

	return kept
}
