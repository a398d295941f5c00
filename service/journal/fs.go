package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/model"
)

// FsStore persists journal records under world/<key>/journal via viant/afs.
// Each record lives in its own zero-padded file so a plain listing reads in
// height order; a head pointer file avoids listing on the hot path.
type FsStore struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

// Ensure FsStore implements Store
var _ Store = (*FsStore)(nil)

// NewFsStore creates a filesystem-backed journal store rooted at baseURL.
func NewFsStore(fs afs.Service, baseURL string) (*FsStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	return &FsStore{baseURL: url.Normalize(baseURL, file.Scheme), fs: fs}, nil
}

// Append commits record at expectedHeight+1.  The record file is written
// before the head pointer advances, so a crash between the two leaves a
// harmless orphan that the next append overwrites.
func (s *FsStore) Append(ctx context.Context, world model.WorldID, expectedHeight uint64, record *model.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.head(ctx, world)
	if err != nil {
		return 0, err
	}
	if head != expectedHeight {
		return 0, fmt.Errorf("world %s at height %d, expected %d: %w", world, head, expectedHeight, ErrStaleHeight)
	}
	stored := *record
	stored.Height = head + 1
	data, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record for %s: %w", world, err)
	}
	if err := s.fs.Upload(ctx, s.recordLocation(world, stored.Height), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return 0, fmt.Errorf("failed to write record %d for %s: %w", stored.Height, world, err)
	}
	headData := []byte(strconv.FormatUint(stored.Height, 10))
	if err := s.fs.Upload(ctx, s.headLocation(world), file.DefaultFileOsMode, bytes.NewReader(headData)); err != nil {
		return 0, fmt.Errorf("failed to advance head for %s: %w", world, err)
	}
	return stored.Height, nil
}

// Head returns the last committed height.
func (s *FsStore) Head(ctx context.Context, world model.WorldID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head(ctx, world)
}

func (s *FsStore) head(ctx context.Context, world model.WorldID) (uint64, error) {
	location := s.headLocation(world)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("failed to check head for %s: %w", world, err)
	}
	if !exists {
		return 0, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("failed to read head for %s: %w", world, err)
	}
	head, err := strconv.ParseUint(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse head for %s: %w", world, err)
	}
	return head, nil
}

// Get returns the record at a height.
func (s *FsStore) Get(ctx context.Context, world model.WorldID, height uint64) (*model.Record, error) {
	if height == 0 {
		return nil, fmt.Errorf("world %s height 0: %w", world, ErrNotFound)
	}
	location := s.recordLocation(world, height)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check record %d for %s: %w", height, world, err)
	}
	if !exists {
		return nil, fmt.Errorf("world %s height %d: %w", world, height, ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %d for %s: %w", height, world, err)
	}
	record := &model.Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %d for %s: %w", height, world, err)
	}
	return record, nil
}

// Tail returns all records above from, in height order.
func (s *FsStore) Tail(ctx context.Context, world model.WorldID, from uint64) ([]*model.Record, error) {
	head, err := s.Head(ctx, world)
	if err != nil {
		return nil, err
	}
	var result []*model.Record
	for height := from + 1; height <= head; height++ {
		record, err := s.Get(ctx, world, height)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (s *FsStore) recordLocation(world model.WorldID, height uint64) string {
	return path.Join(s.baseURL, "world", world.Key(), "journal", fmt.Sprintf("%020d.json", height))
}

func (s *FsStore) headLocation(world model.WorldID) string {
	return path.Join(s.baseURL, "world", world.Key(), "journal", "head")
}
