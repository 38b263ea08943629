package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMatches(t *testing.T) {
	w := &Watcher{extension: ".pdf"}

	tests := []struct {
		path string
		want bool
	}{
		{"/docs/report.pdf", true},
		{"/docs/REPORT.PDF", true},
		{"/docs/report.txt", false},
		{"/docs/report", false},
		{"/docs/report.pdf.tmp", false},
	}

	for _, tt := range tests {
		if got := w.matches(tt.path); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcherCreation(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(tmpDir, ".pdf", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.fsw == nil {
		t.Error("expected non-nil fsnotify watcher")
	}
	w.fsw.Close()
}

func TestWatcherEmitsSettledFile(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(tmpDir, ".pdf", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	target := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(target, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	// A non-matching file must not produce an event.
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-w.Events():
		if event.Path != target {
			t.Errorf("expected event for %s, got %s", target, event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file event")
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected extra event: %s", event.Path)
	case <-time.After(100 * time.Millisecond):
	}
}
