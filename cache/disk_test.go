package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestDiskBackend(t *testing.T, compress bool) *DiskBackend {
	t.Helper()
	b, err := NewDiskBackend(t.TempDir(), compress, nil)
	if err != nil {
		t.Fatalf("NewDiskBackend failed: %v", err)
	}
	return b
}

func TestDiskBackend_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			b := newTestDiskBackend(t, compress)
			ctx := context.Background()

			value := []byte(`{"result": 42}`)
			if err := b.Set(ctx, "k", value, time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, ok, err := b.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !ok {
				t.Fatal("Get after Set should hit")
			}
			if !bytes.Equal(got, value) {
				t.Errorf("Get returned %q, want %q", got, value)
			}

			if err := b.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, ok, _ := b.Get(ctx, "k"); ok {
				t.Error("Get after Delete should miss")
			}
			if err := b.Delete(ctx, "k"); err != nil {
				t.Errorf("Delete on absent key should not error, got: %v", err)
			}
		})
	}
}

func TestDiskBackend_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b1, err := NewDiskBackend(dir, false, nil)
	if err != nil {
		t.Fatalf("NewDiskBackend failed: %v", err)
	}
	if err := b1.Set(ctx, "k", []byte("durable"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b1.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b2, err := NewDiskBackend(dir, false, nil)
	if err != nil {
		t.Fatalf("NewDiskBackend failed: %v", err)
	}
	got, ok, err := b2.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("entry should survive backend restart")
	}
	if !bytes.Equal(got, []byte("durable")) {
		t.Errorf("Get returned %q, want %q", got, "durable")
	}
}

func TestDiskBackend_ShardLayout(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	path := b.path("k")
	rel, err := filepath.Rel(b.base, path)
	if err != nil {
		t.Fatalf("Rel failed: %v", err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		t.Fatalf("path depth = %d, want shard/file", len(parts))
	}
	if len(parts[0]) != 2 {
		t.Errorf("shard dir %q should be 2 hex chars", parts[0])
	}
	if !strings.HasPrefix(parts[1], parts[0]) {
		t.Errorf("file %q should start with its shard prefix %q", parts[1], parts[0])
	}
	if !strings.HasSuffix(parts[1], cacheFileSuffix) {
		t.Errorf("file %q missing %q suffix", parts[1], cacheFileSuffix)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file at %s: %v", path, err)
	}
}

func TestDiskBackend_ExpiredEntryRemoved(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("Get after expiry should miss")
	}
	if _, err := os.Stat(b.path("k")); !os.IsNotExist(err) {
		t.Error("expired file should be removed on read")
	}
}

func TestDiskBackend_CorruptFileIsMiss(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := os.WriteFile(b.path("k"), []byte("not an envelope"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	val, ok, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("corrupt file should not propagate an error, got: %v", err)
	}
	if ok || val != nil {
		t.Error("corrupt file should read as a miss")
	}
}

func TestDiskBackend_NoTempFileSurvivors(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := b.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	err := filepath.WalkDir(b.base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".tmp") {
			t.Errorf("leftover temp file: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
}

func TestDiskBackend_Clear(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	// Root survives empty and the backend keeps working.
	entries, err := os.ReadDir(b.base)
	if err != nil {
		t.Fatalf("root directory missing after Clear: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d entries remain after Clear", len(entries))
	}

	if err := b.Set(ctx, "fresh", []byte("v"), 0); err != nil {
		t.Fatalf("Set after Clear failed: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "fresh"); !ok {
		t.Error("backend unusable after Clear")
	}
}

func TestDiskBackend_CleanupExpired(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	if err := b.Set(ctx, "live", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Set(ctx, "dead1", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Set(ctx, "dead2", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// A corrupt file counts as removable garbage too.
	if err := b.Set(ctx, "corrupt", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := os.WriteFile(b.path("corrupt"), []byte("junk"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	n, err := b.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CleanupExpired removed %d files, want 3", n)
	}
	if _, ok, _ := b.Get(ctx, "live"); !ok {
		t.Error("live entry removed by cleanup")
	}
}

func TestDiskBackend_CleanupHonorsContext(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := b.CleanupExpired(cancelled); err == nil {
		t.Error("CleanupExpired should report a cancelled context")
	}
}

func TestDiskBackend_ConcurrentSameKey(t *testing.T) {
	b := newTestDiskBackend(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			value := bytes.Repeat([]byte{byte('a' + n)}, 256)
			for j := 0; j < 20; j++ {
				if err := b.Set(ctx, "contended", value, time.Minute); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	// The surviving value must be one complete write, never interleaved.
	got, ok, err := b.Get(ctx, "contended")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if len(got) != 256 {
		t.Fatalf("value length = %d, want 256", len(got))
	}
	for _, c := range got {
		if c != got[0] {
			t.Fatal("torn write observed")
		}
	}
}

func TestDiskBackend_RequiresBasePath(t *testing.T) {
	if _, err := NewDiskBackend("", false, nil); err == nil {
		t.Error("empty base path should be rejected")
	}
}
