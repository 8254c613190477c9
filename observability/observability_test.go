package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestMemoryLoggerWith(t *testing.T) {
	mem := NewMemoryLogger()
	child := mem.With(String("page", "3"))
	child.Warn("degraded", Error("err", errors.New("boom")), Float64("zoom", 1.5), Bool("derived", true))
	mem.Info("plain")

	entries := mem.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "warn" || e.Fields["page"] != "3" || e.Fields["zoom"] != 1.5 || e.Fields["derived"] != true {
		t.Fatalf("unexpected entry %+v", e)
	}
	if mem.Count("warn") != 1 || mem.Count("info") != 1 {
		t.Fatalf("counts wrong: %+v", entries)
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.With(Int("page", 2)).Error("edit failed", Error("err", errors.New("bad font")))
	out := buf.String()
	for _, want := range []string{"edit failed", "page=2", `err="bad font"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("nil logger should become NopLogger")
	}
	mem := NewMemoryLogger()
	if OrNop(mem) != Logger(mem) {
		t.Fatalf("non-nil logger must be kept")
	}
}
