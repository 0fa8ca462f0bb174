// Package logbuf captures recent log records for the dashboard.
//
// Handler decorates another slog.Handler and keeps the last N records in a
// ring buffer so the control surface can report them without touching disk.
package logbuf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// DefaultCapacity matches the dashboard's log window.
const DefaultCapacity = 100

// Handler is a slog.Handler decorator that retains recent records.
type Handler struct {
	inner slog.Handler

	mu      sync.Mutex
	entries []models.LogEntry
	next    int
	full    bool
}

// NewHandler wraps inner with a ring of the given capacity. A non-positive
// capacity falls back to DefaultCapacity.
func NewHandler(inner slog.Handler, capacity int) *Handler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Handler{
		inner:   inner,
		entries: make([]models.LogEntry, capacity),
	}
}

// Enabled defers to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle records the entry in the ring and forwards it.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	h.capture(record)
	return h.inner.Handle(ctx, record)
}

// WithAttrs returns a handler sharing this ring with extra attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringChild{parent: h, inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler sharing this ring inside a group.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &ringChild{parent: h, inner: h.inner.WithGroup(name)}
}

// capture renders the record to a LogEntry and stores it in the ring.
func (h *Handler) capture(record slog.Record) {
	var b strings.Builder
	b.WriteString(record.Message)
	record.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
		return true
	})

	entry := models.LogEntry{
		Timestamp: record.Time,
		Level:     strings.ToLower(record.Level.String()),
		Message:   b.String(),
	}

	h.mu.Lock()
	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// Recent returns up to n captured entries, newest first. n <= 0 returns all.
func (h *Handler) Recent(n int) []models.LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.full {
		size = len(h.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]models.LogEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	return out
}

// Dump renders every captured entry oldest first, one per line, for the log
// download endpoint.
func (h *Handler) Dump() string {
	entries := h.Recent(0)
	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "[%s] [%s] %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level), e.Message)
	}
	return b.String()
}

// ringChild forwards records through a derived inner handler while recording
// them in the shared parent ring.
type ringChild struct {
	parent *Handler
	inner  slog.Handler
}

func (c *ringChild) Enabled(ctx context.Context, level slog.Level) bool {
	return c.inner.Enabled(ctx, level)
}

func (c *ringChild) Handle(ctx context.Context, record slog.Record) error {
	c.parent.capture(record)
	return c.inner.Handle(ctx, record)
}

func (c *ringChild) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringChild{parent: c.parent, inner: c.inner.WithAttrs(attrs)}
}

func (c *ringChild) WithGroup(name string) slog.Handler {
	return &ringChild{parent: c.parent, inner: c.inner.WithGroup(name)}
}
