package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/regionedit/extract"
)

func TestSampleEditRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "none.toml")
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")

	if err := run(ctx, []string{"-config", cfg, "-log", "error", "sample", in}); err != nil {
		t.Fatalf("sample: %v", err)
	}
	if err := run(ctx, []string{"-config", cfg, "regions", in}); err != nil {
		t.Fatalf("regions: %v", err)
	}
	if err := run(ctx, []string{"-config", cfg, "edit", "-x", "103", "-y", "88", "-text", "Invoice #7", "-o", out, in}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	rs := extract.ExtractBytes(ctx, data, 0, extract.Options{})
	if len(rs) != 1 || rs[0].OriginalText != "Invoice #7" {
		t.Fatalf("regions after edit = %+v", rs)
	}
}

func TestEditMissRegion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "none.toml")
	in := filepath.Join(dir, "in.pdf")
	if err := run(ctx, []string{"-config", cfg, "sample", in}); err != nil {
		t.Fatalf("sample: %v", err)
	}
	err := run(ctx, []string{"-config", cfg, "edit", "-x", "500", "-y", "700", "-text", "x", "-o", filepath.Join(dir, "o.pdf"), in})
	if err == nil || errors.Is(err, errUsage) {
		t.Fatalf("edit in empty space = %v", err)
	}
}

func TestItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	dump := `{"items": [{"str": "Total", "width": 30, "height": 10, "transform": [10, 0, 0, 10, 50, 60], "fontName": "f1"}]}`
	if err := os.WriteFile(path, []byte(dump), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run(context.Background(), []string{"-config", path + ".toml", "items", path}); err != nil {
		t.Fatalf("items: %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{{}, {"frobnicate"}, {"regions"}, {"edit", "x.pdf"}} {
		if err := run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Fatalf("%v: err = %v", args, err)
		}
	}
}
