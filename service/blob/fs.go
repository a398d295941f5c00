package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// FsStore implements Store on top of viant/afs so that content may live on
// the local filesystem or any afs-supported backend.  Objects are sharded by
// the first two digest characters to keep directory listings bounded.
type FsStore struct {
	baseURL string
	fs      afs.Service
}

// Ensure FsStore implements Store
var _ Store = (*FsStore)(nil)

// NewFsStore creates a filesystem-backed content store rooted at baseURL.
func NewFsStore(fs afs.Service, baseURL string) (*FsStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	baseURL = url.Normalize(baseURL, file.Scheme)
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create blob store root: %w", err)
		}
	}
	return &FsStore{baseURL: baseURL, fs: fs}, nil
}

// Put persists bytes under their content ref.
func (s *FsStore) Put(ctx context.Context, data []byte) (Ref, error) {
	ref := RefOf(data)
	location := s.location(ref)
	if exists, _ := s.fs.Exists(ctx, location); exists {
		return ref, nil
	}
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store blob %s: %w", ref, err)
	}
	return ref, nil
}

// Get returns the content named by ref.
func (s *FsStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	location := s.location(ref)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check blob %s: %w", ref, err)
	}
	if !exists {
		return nil, fmt.Errorf("blob %s: %w", ref, ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports presence of ref.
func (s *FsStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	return s.fs.Exists(ctx, s.location(ref))
}

func (s *FsStore) location(ref Ref) string {
	name := string(ref)
	if len(name) < 2 {
		return path.Join(s.baseURL, name)
	}
	return path.Join(s.baseURL, name[:2], name)
}
