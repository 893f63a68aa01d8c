package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guests.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, 100*time.Millisecond, func() {
			calls.Add(1)
			changed <- struct{}{}
		})
	}()

	// Give the watcher time to register
	time.Sleep(200 * time.Millisecond)

	for i := range 5 {
		os.WriteFile(path, []byte("# edit "+string(rune('a'+i))+"\n{}\n"), 0644)
	}
	// Unrelated files in the same directory are ignored
	os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change callback")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected one debounced callback, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestFileCallbacksDoNotOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guests.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, overlaps atomic.Int32
	entered := make(chan struct{}, 10)
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, 20*time.Millisecond, func() {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			entered <- struct{}{}
			<-release
			running.Add(-1)
		})
	}()
	time.Sleep(200 * time.Millisecond)

	os.WriteFile(path, []byte("# first\n"), 0644)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no change callback")
	}

	// Edits while the callback is still running
	for i := range 3 {
		os.WriteFile(path, []byte("# edit "+string(rune('a'+i))+"\n"), 0644)
		time.Sleep(50 * time.Millisecond)
	}
	close(release)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("edits during a callback were lost")
	}
	time.Sleep(200 * time.Millisecond)

	if n := overlaps.Load(); n != 0 {
		t.Errorf("callbacks overlapped %d times", n)
	}
	cancel()
	<-done
}

func TestFileMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "guests.yaml")
	if err := File(context.Background(), path, 0, func() {}); err == nil {
		t.Error("expected error watching a missing directory")
	}
}
