package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/blob"
)

// BaselineStore holds each world's promoted baseline pointer.
type BaselineStore interface {
	Get(ctx context.Context, world model.WorldID) (blob.Ref, error)
	Put(ctx context.Context, world model.WorldID, ref blob.Ref) error
}

// MemoryBaselines is an in-memory baseline store.
type MemoryBaselines struct {
	mu   sync.RWMutex
	refs map[string]blob.Ref
}

// Ensure MemoryBaselines implements BaselineStore
var _ BaselineStore = (*MemoryBaselines)(nil)

// NewMemoryBaselines creates an empty in-memory baseline store.
func NewMemoryBaselines() *MemoryBaselines {
	return &MemoryBaselines{refs: make(map[string]blob.Ref)}
}

// Get returns the world's baseline ref.
func (s *MemoryBaselines) Get(_ context.Context, world model.WorldID) (blob.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[world.Key()]
	if !ok {
		return "", fmt.Errorf("world %s: %w", world, ErrNoBaseline)
	}
	return ref, nil
}

// Put stores the world's baseline ref.
func (s *MemoryBaselines) Put(_ context.Context, world model.WorldID, ref blob.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[world.Key()] = ref
	return nil
}

// FsBaselines persists baseline pointers under world/<key>/baseline.
type FsBaselines struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

// Ensure FsBaselines implements BaselineStore
var _ BaselineStore = (*FsBaselines)(nil)

// NewFsBaselines creates a filesystem baseline store rooted at baseURL.
func NewFsBaselines(fs afs.Service, baseURL string) (*FsBaselines, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	return &FsBaselines{baseURL: url.Normalize(baseURL, file.Scheme), fs: fs}, nil
}

// Get returns the world's baseline ref.
func (s *FsBaselines) Get(ctx context.Context, world model.WorldID) (blob.Ref, error) {
	location := s.location(world)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return "", fmt.Errorf("failed to check baseline for %s: %w", world, err)
	}
	if !exists {
		return "", fmt.Errorf("world %s: %w", world, ErrNoBaseline)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return "", fmt.Errorf("failed to read baseline for %s: %w", world, err)
	}
	return blob.Ref(strings.TrimSpace(string(data))), nil
}

// Put stores the world's baseline ref.
func (s *FsBaselines) Put(ctx context.Context, world model.WorldID, ref blob.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(world)
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader([]byte(ref))); err != nil {
		return fmt.Errorf("failed to write baseline for %s: %w", world, err)
	}
	return nil
}

func (s *FsBaselines) location(world model.WorldID) string {
	return path.Join(s.baseURL, "world", world.Key(), "baseline")
}
