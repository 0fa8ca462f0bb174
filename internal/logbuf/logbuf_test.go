package logbuf

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(capacity int) (*slog.Logger, *Handler) {
	h := NewHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}), capacity)
	return slog.New(h), h
}

func TestHandler_CapturesRecords(t *testing.T) {
	logger, h := newTestLogger(10)

	logger.Info("bot started", "addr", ":8080")
	logger.Warn("reconnecting")

	got := h.Recent(0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries, want 2", len(got))
	}
	// Newest first.
	if got[0].Message != "reconnecting" {
		t.Errorf("newest entry = %q", got[0].Message)
	}
	if got[0].Level != "warn" {
		t.Errorf("level = %q, want warn", got[0].Level)
	}
	if !strings.Contains(got[1].Message, "addr=:8080") {
		t.Errorf("attrs not rendered: %q", got[1].Message)
	}
}

func TestHandler_RingWraps(t *testing.T) {
	logger, h := newTestLogger(3)

	for i := 0; i < 5; i++ {
		logger.Info(fmt.Sprintf("entry %d", i))
	}

	got := h.Recent(0)
	if len(got) != 3 {
		t.Fatalf("ring holds %d entries, want 3", len(got))
	}
	for i, want := range []string{"entry 4", "entry 3", "entry 2"} {
		if got[i].Message != want {
			t.Errorf("entry[%d] = %q, want %q", i, got[i].Message, want)
		}
	}

	if limited := h.Recent(2); len(limited) != 2 || limited[0].Message != "entry 4" {
		t.Errorf("Recent(2) = %v", limited)
	}
}

func TestHandler_DerivedHandlersShareRing(t *testing.T) {
	logger, h := newTestLogger(10)

	logger.With("component", "store").Info("migrated")
	logger.WithGroup("api").Info("listening")

	got := h.Recent(0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries, want 2", len(got))
	}
}

func TestHandler_Dump(t *testing.T) {
	logger, h := newTestLogger(10)

	logger.Info("first")
	logger.Error("second")

	dump := h.Dump()
	lines := strings.Split(strings.TrimSpace(dump), "\n")
	if len(lines) != 2 {
		t.Fatalf("dump has %d lines, want 2: %q", len(lines), dump)
	}
	if !strings.Contains(lines[0], "first") || !strings.Contains(lines[0], "[INFO]") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "second") || !strings.Contains(lines[1], "[ERROR]") {
		t.Errorf("second line = %q", lines[1])
	}
}
