package fsstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"go-video-recorder/internal/core/domain"
)

func newTestStore(t *testing.T) (*ChunkStore, string) {
	t.Helper()
	store, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewChunkStore: %v", err)
	}
	id := uuid.NewString()
	if err := store.Provision(context.Background(), id); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return store, id
}

// TestJoinConcatenatesInArrivalOrder verifies chunks are joined in the order they were appended.
func TestJoinConcatenatesInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	store, id := newTestStore(t)

	for i, chunk := range []string{"AAA", "BBB", "CC"} {
		index, err := store.Append(ctx, id, []byte(chunk))
		if err != nil {
			t.Fatalf("append %q: %v", chunk, err)
		}
		if index != i+1 {
			t.Fatalf("append %q index = %d, want %d", chunk, index, i+1)
		}
	}

	result, err := store.Join(ctx, id)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.Chunks != 3 || result.Size != 8 {
		t.Fatalf("result = %+v, want 3 chunks and 8 bytes", result)
	}
	if result.Path != store.ArtifactPath(id) {
		t.Fatalf("path = %s, want %s", result.Path, store.ArtifactPath(id))
	}

	got, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != "AAABBBCC" {
		t.Fatalf("artifact = %q, want %q", got, "AAABBBCC")
	}
	if !store.ArtifactExists(ctx, id) {
		t.Fatal("ArtifactExists = false after join")
	}
}

// TestJoinReplacesPreviousArtifact checks a second join rebuilds from the chunks present at that time.
func TestJoinReplacesPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	store, id := newTestStore(t)

	if _, err := store.Append(ctx, id, []byte("AAA")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Join(ctx, id); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := store.Append(ctx, id, []byte("BBB")); err != nil {
		t.Fatalf("append: %v", err)
	}
	result, err := store.Join(ctx, id)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}

	got, _ := os.ReadFile(result.Path)
	if string(got) != "AAABBB" {
		t.Fatalf("artifact = %q, want AAABBB", got)
	}
}

func TestJoinEmptyStore(t *testing.T) {
	store, id := newTestStore(t)

	_, err := store.Join(context.Background(), id)
	if !errors.Is(err, domain.ErrEmptyChunkStore) {
		t.Fatalf("error = %v, want ErrEmptyChunkStore", err)
	}
	if store.ArtifactExists(context.Background(), id) {
		t.Fatal("empty join must not produce an artifact")
	}
}

// TestJoinUnwritableArtifact verifies a blocked artifact path reports ErrIO and leaves no temp files.
func TestJoinUnwritableArtifact(t *testing.T) {
	ctx := context.Background()
	store, id := newTestStore(t)

	if _, err := store.Append(ctx, id, []byte("AAA")); err != nil {
		t.Fatalf("append: %v", err)
	}
	artifact := store.ArtifactPath(id)
	if err := os.MkdirAll(artifact, dirPerm); err != nil {
		t.Fatalf("block artifact: %v", err)
	}
	if err := os.WriteFile(filepath.Join(artifact, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatalf("block artifact: %v", err)
	}

	_, err := store.Join(ctx, id)
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("error = %v, want ErrIO", err)
	}
	if store.ArtifactExists(ctx, id) {
		t.Fatal("ArtifactExists = true after failed join")
	}

	entries, err := os.ReadDir(filepath.Dir(artifact))
	if err != nil {
		t.Fatalf("read session dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempPrefix) {
			t.Fatalf("temp file %s left behind", entry.Name())
		}
	}
}

// TestConcurrentAppendsDoNotInterleave verifies every chunk lands intact as its own unit.
func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	store, id := newTestStore(t)

	const workers = 16
	const chunkSize = 4096

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			if _, err := store.Append(ctx, id, bytes.Repeat([]byte{b}, chunkSize)); err != nil {
				t.Errorf("append %c: %v", b, err)
			}
		}(byte('a' + i))
	}
	wg.Wait()

	count, err := store.Count(ctx, id)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != workers {
		t.Fatalf("count = %d, want %d", count, workers)
	}

	result, err := store.Join(ctx, id)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(data) != workers*chunkSize {
		t.Fatalf("artifact size = %d, want %d", len(data), workers*chunkSize)
	}

	seen := make(map[byte]bool)
	for off := 0; off < len(data); off += chunkSize {
		segment := data[off : off+chunkSize]
		if !bytes.Equal(segment, bytes.Repeat(segment[:1], chunkSize)) {
			t.Fatalf("segment at %d is interleaved", off)
		}
		if seen[segment[0]] {
			t.Fatalf("segment %c appears twice", segment[0])
		}
		seen[segment[0]] = true
	}
}

// TestAppendResumesNumbering checks a fresh store continues after existing chunk files.
func TestAppendResumesNumbering(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	id := uuid.NewString()

	first, err := NewChunkStore(root)
	if err != nil {
		t.Fatalf("NewChunkStore: %v", err)
	}
	if err := first.Provision(ctx, id); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, err := first.Append(ctx, id, []byte("one")); err != nil {
		t.Fatalf("append: %v", err)
	}

	second, err := NewChunkStore(root)
	if err != nil {
		t.Fatalf("NewChunkStore: %v", err)
	}
	index, err := second.Append(ctx, id, []byte("two"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if index != 2 {
		t.Fatalf("index = %d, want 2", index)
	}
	if _, err := os.Stat(filepath.Join(root, id, chunksDir, "00000002.chunk")); err != nil {
		t.Fatalf("expected second chunk file: %v", err)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Append(context.Background(), uuid.NewString(), []byte("x"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRejectsPathLikeIDs(t *testing.T) {
	store, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewChunkStore: %v", err)
	}
	for _, id := range []string{"", "..", "../etc", "abc/def"} {
		if err := store.Provision(context.Background(), id); err == nil {
			t.Errorf("Provision(%q) succeeded, want error", id)
		}
		if store.Exists(context.Background(), id) {
			t.Errorf("Exists(%q) = true", id)
		}
	}
}

func TestChunkIndex(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"00000001.chunk", 1, true},
		{"00000042.chunk", 42, true},
		{"00000000.chunk", 0, false},
		{".tmp-123.chunk", 0, false},
	}
	for _, tt := range tests {
		got, ok := chunkIndex(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("chunkIndex(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
	if chunkFileName(7) != "00000007.chunk" {
		t.Fatalf("chunkFileName(7) = %s", chunkFileName(7))
	}
}
