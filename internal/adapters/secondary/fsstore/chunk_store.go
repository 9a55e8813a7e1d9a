package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go-video-recorder/internal/core/domain"
	"go-video-recorder/internal/core/ports"
)

const (
	chunksDir    = "chunks"
	chunkExt     = ".chunk"
	artifactName = "final_video.mp4"
	tempPrefix   = ".tmp-"
	dirPerm      = 0o755
)

// ChunkStore keeps each session's chunks as numbered files under
// <root>/<session_id>/chunks and the joined artifact next to them.
type ChunkStore struct {
	root string

	mu sync.Mutex
	// locks holds one entry per session touched since start. Sessions are
	// never deleted, so entries live as long as the process.
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	next int // index of the next chunk; 0 until the directory was scanned
}

func NewChunkStore(root string) (*ChunkStore, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create chunk store root: %w", err)
	}
	return &ChunkStore{
		root:  root,
		locks: make(map[string]*sessionLock),
	}, nil
}

func (s *ChunkStore) lock(sessionID string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *ChunkStore) chunkDir(sessionID string) string {
	return filepath.Join(s.root, sessionID, chunksDir)
}

// Provision creates the empty bucket for a new session.
func (s *ChunkStore) Provision(ctx context.Context, sessionID string) error {
	if !validID(sessionID) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	if err := os.MkdirAll(s.chunkDir(sessionID), dirPerm); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

func (s *ChunkStore) Exists(ctx context.Context, sessionID string) bool {
	if !validID(sessionID) {
		return false
	}
	info, err := os.Stat(s.chunkDir(sessionID))
	return err == nil && info.IsDir()
}

// Append writes chunk as the next file of the session's sequence. The file
// is renamed into place only once fully written, so a concurrent Join sees
// either the whole chunk or none of it.
func (s *ChunkStore) Append(ctx context.Context, sessionID string, chunk []byte) (int, error) {
	if !s.Exists(ctx, sessionID) {
		return 0, fmt.Errorf("%w: no chunk store for session %s", domain.ErrNotFound, sessionID)
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	if l.next == 0 {
		names, err := s.chunkNames(sessionID)
		if err != nil {
			return 0, err
		}
		l.next = nextIndex(names)
	}

	dir := s.chunkDir(sessionID)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, chunk); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("%w: write chunk: %v", domain.ErrIO, err)
	}

	index := l.next
	if err := os.Rename(tmpName, filepath.Join(dir, chunkFileName(index))); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("%w: commit chunk: %v", domain.ErrIO, err)
	}
	l.next++
	return index, nil
}

func (s *ChunkStore) Count(ctx context.Context, sessionID string) (int, error) {
	if !s.Exists(ctx, sessionID) {
		return 0, fmt.Errorf("%w: no chunk store for session %s", domain.ErrNotFound, sessionID)
	}
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	names, err := s.chunkNames(sessionID)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Join concatenates the chunks present now, in arrival order, and replaces
// the final artifact with the result.
func (s *ChunkStore) Join(ctx context.Context, sessionID string) (ports.JoinResult, error) {
	if !s.Exists(ctx, sessionID) {
		return ports.JoinResult{}, fmt.Errorf("%w: no chunk store for session %s", domain.ErrNotFound, sessionID)
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	names, err := s.chunkNames(sessionID)
	if err != nil {
		return ports.JoinResult{}, err
	}
	if len(names) == 0 {
		return ports.JoinResult{}, domain.ErrEmptyChunkStore
	}

	tmp, err := os.CreateTemp(s.sessionDir(sessionID), tempPrefix+"*")
	if err != nil {
		return ports.JoinResult{}, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	tmpName := tmp.Name()

	size, err := concatInto(ctx, tmp, s.chunkDir(sessionID), names)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return ports.JoinResult{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return ports.JoinResult{}, fmt.Errorf("%w: sync artifact: %v", domain.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ports.JoinResult{}, fmt.Errorf("%w: close artifact: %v", domain.ErrIO, err)
	}

	path := s.ArtifactPath(sessionID)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return ports.JoinResult{}, fmt.Errorf("%w: commit artifact: %v", domain.ErrIO, err)
	}

	return ports.JoinResult{Path: path, Chunks: len(names), Size: size}, nil
}

func (s *ChunkStore) ArtifactPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), artifactName)
}

func (s *ChunkStore) ArtifactExists(ctx context.Context, sessionID string) bool {
	if !validID(sessionID) {
		return false
	}
	info, err := os.Stat(s.ArtifactPath(sessionID))
	return err == nil && info.Mode().IsRegular()
}

// chunkNames lists committed chunk files sorted by index.
func (s *ChunkStore) chunkNames(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(s.chunkDir(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no chunk store for session %s", domain.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, chunkExt) {
			continue
		}
		if _, ok := chunkIndex(name); ok {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := chunkIndex(names[i])
		b, _ := chunkIndex(names[j])
		return a < b
	})
	return names, nil
}

func concatInto(ctx context.Context, dst io.Writer, dir string, names []string) (int64, error) {
	var total int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return total, fmt.Errorf("%w: open %s: %v", domain.ErrIO, name, err)
		}
		n, err := io.Copy(dst, f)
		f.Close()
		total += n
		if err != nil {
			return total, fmt.Errorf("%w: copy %s: %v", domain.ErrIO, name, err)
		}
	}
	return total, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func chunkFileName(index int) string {
	return fmt.Sprintf("%08d%s", index, chunkExt)
}

func chunkIndex(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(name, chunkExt))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func nextIndex(names []string) int {
	if len(names) == 0 {
		return 1
	}
	last, _ := chunkIndex(names[len(names)-1])
	return last + 1
}

// validID keeps session ids from escaping the store root.
func validID(sessionID string) bool {
	_, err := uuid.Parse(sessionID)
	return err == nil
}
