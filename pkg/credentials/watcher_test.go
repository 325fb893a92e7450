package credentials

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	if err := os.WriteFile(path, []byte("models: {}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fw, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = fw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// Give the watcher a moment to install its directory watch.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("models:\n  m: []\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reloads.Load() >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() < 1 {
		t.Fatal("expected a reload after the file changed")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestFileWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	if err := os.WriteFile(path, []byte("models: {}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fw, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = fw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	other := filepath.Join(dir, "unrelated.yaml")
	if err := os.WriteFile(other, []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if reloads.Load() != 0 {
		t.Errorf("sibling file change should not trigger a reload, got %d", reloads.Load())
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { fired.Add(1) })
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected burst to collapse to 1 callback, got %d", got)
	}
}
