package lease

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/model"
)

// FsStore persists lease records under world/<key>/lease via viant/afs.
type FsStore struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

// Ensure FsStore implements Store
var _ Store = (*FsStore)(nil)

// NewFsStore creates a filesystem-backed lease store rooted at baseURL.
func NewFsStore(fs afs.Service, baseURL string) (*FsStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	return &FsStore{baseURL: url.Normalize(baseURL, file.Scheme), fs: fs}, nil
}

// Get returns the lease record for a world.
func (s *FsStore) Get(ctx context.Context, world model.WorldID) (*Record, error) {
	location := s.location(world)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check lease for %s: %w", world, err)
	}
	if !exists {
		return nil, fmt.Errorf("world %s: %w", world, ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read lease for %s: %w", world, err)
	}
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease for %s: %w", world, err)
	}
	return record, nil
}

// Put stores the lease record.
func (s *FsStore) Put(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal lease for %s: %w", record.World, err)
	}
	location := s.location(record.World)
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write lease for %s: %w", record.World, err)
	}
	return nil
}

func (s *FsStore) location(world model.WorldID) string {
	return path.Join(s.baseURL, "world", world.Key(), "lease")
}
