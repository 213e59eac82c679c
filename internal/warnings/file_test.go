package warnings

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.json")
	s := NewFileStore(path)
	ctx := context.Background()

	want := map[string]int{"1001": 2, "1002": 0}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load() returned %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Load()[%q] = %d, want %d", k, got[k], v)
		}
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty ledger, got %v", got)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not json at all"},
		{"truncated", `{"1001": 2,`},
		{"wrong value type", `{"1001": "two"}`},
		{"array", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "warnings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := NewFileStore(path).Load(context.Background()); err == nil {
				t.Error("expected decode error for corrupt store")
			}

			// The ledger swallows the error and starts empty.
			l := NewLedger(context.Background(), NewFileStore(path), nil)
			if n := len(l.Snapshot()); n != 0 {
				t.Errorf("expected empty ledger, got %d entries", n)
			}
		})
	}
}

func TestFileStore_NullIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.json")
	if err := os.WriteFile(path, []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected non-nil empty map, got %v", got)
	}
}

func TestFileStore_HumanReadableUnescaped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.json")
	s := NewFileStore(path)

	if err := s.Save(context.Background(), map[string]int{"مستخدم<1>": 1}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "مستخدم<1>") {
		t.Errorf("expected raw UTF-8 key in file, got %s", text)
	}
	if !strings.Contains(text, "\n  ") {
		t.Errorf("expected indented output, got %s", text)
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.json")
	s := NewFileStore(path)
	ctx := context.Background()

	if err := s.Save(ctx, map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, map[string]int{"a": 3}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["a"] != 3 {
		t.Errorf("Load() = %v, want map[a:3]", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the store file, found %d entries", len(entries))
	}
}

func TestNewFileStore_DefaultPath(t *testing.T) {
	if got := NewFileStore("").Path(); got != DefaultFile {
		t.Errorf("Path() = %q, want %q", got, DefaultFile)
	}
}
