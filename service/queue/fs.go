package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/internal/clock"
)

// Fs is a filesystem-backed Pipeline over viant/afs.  Each item lives in a
// pending/ or inflight/ file named after its key; dedupe/ holds an empty
// marker per completed key.  Items survive process crashes, and a claim that
// was never completed is picked up again once its TTL lapses.
type Fs[T any] struct {
	fs          afs.Service
	pendingDir  string
	inflightDir string
	dedupeDir   string
	mu          sync.Mutex
}

// Ensure Fs implements Pipeline
var _ Pipeline[any] = (*Fs[any])(nil)

// NewFs creates a filesystem pipeline rooted at baseURL.
func NewFs[T any](fs afs.Service, baseURL string) (*Fs[T], error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	baseURL = url.Normalize(baseURL, file.Scheme)
	q := &Fs[T]{
		fs:          fs,
		pendingDir:  path.Join(baseURL, "pending"),
		inflightDir: path.Join(baseURL, "inflight"),
		dedupeDir:   path.Join(baseURL, "dedupe"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.inflightDir, q.dedupeDir} {
		exists, _ := fs.Exists(ctx, dir)
		if !exists {
			if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	return q, nil
}

// Enqueue adds an item unless its key is already pending, inflight or complete.
func (q *Fs[T]) Enqueue(ctx context.Context, key string, data *T) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, location := range []string{q.dedupeLocation(key), q.inflightLocation(key), q.pendingLocation(key)} {
		exists, err := q.fs.Exists(ctx, location)
		if err != nil {
			return false, fmt.Errorf("failed to check %s: %w", location, err)
		}
		if exists {
			return false, nil
		}
	}
	item := &Item[T]{Key: key, Data: *data, EnqueuedAt: clock.Now()}
	if err := q.upload(ctx, q.pendingLocation(key), item); err != nil {
		return false, err
	}
	return true, nil
}

// Claim moves the oldest pending item to inflight.
func (q *Fs[T]) Claim(ctx context.Context, owner string, ttl time.Duration) (*Item[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	var files []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			files = append(files, object)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime().Equal(files[j].ModTime()) {
			return files[i].ModTime().Before(files[j].ModTime())
		}
		return files[i].Name() < files[j].Name()
	})
	object := files[0]
	item, err := q.read(ctx, object.URL())
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	item.Owner = owner
	item.ClaimedAt = now
	item.ExpiresAt = now.Add(ttl)

	// Write to inflight first, then remove from pending; a crash between the
	// two leaves a duplicate that Enqueue's key check and the dedupe table
	// render harmless.
	if err := q.upload(ctx, q.inflightLocation(item.Key), item); err != nil {
		return nil, err
	}
	if err := q.fs.Delete(ctx, object.URL()); err != nil {
		return nil, fmt.Errorf("failed to remove pending item %s: %w", item.Key, err)
	}
	out := *item
	return &out, nil
}

// Complete records the terminal outcome for the key.
func (q *Fs[T]) Complete(ctx context.Context, key string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	marker := q.dedupeLocation(key)
	exists, err := q.fs.Exists(ctx, marker)
	if err != nil {
		return false, fmt.Errorf("failed to check dedupe marker %s: %w", key, err)
	}
	if exists {
		return false, nil
	}
	if err := q.fs.Upload(ctx, marker, file.DefaultFileOsMode, bytes.NewReader([]byte("{}"))); err != nil {
		return false, fmt.Errorf("failed to write dedupe marker %s: %w", key, err)
	}
	inflight := q.inflightLocation(key)
	if exists, _ := q.fs.Exists(ctx, inflight); exists {
		if err := q.fs.Delete(ctx, inflight); err != nil {
			return false, fmt.Errorf("failed to remove inflight item %s: %w", key, err)
		}
	}
	return true, nil
}

// Release returns an inflight item to pending.
func (q *Fs[T]) Release(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requeue(ctx, key)
}

func (q *Fs[T]) requeue(ctx context.Context, key string) error {
	location := q.inflightLocation(key)
	exists, err := q.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check inflight item %s: %w", key, err)
	}
	if !exists {
		return fmt.Errorf("key %s: %w", key, ErrNotClaimed)
	}
	item, err := q.read(ctx, location)
	if err != nil {
		return err
	}
	item.Owner = ""
	item.ClaimedAt = time.Time{}
	item.ExpiresAt = time.Time{}
	item.Attempts++
	if err := q.upload(ctx, q.pendingLocation(key), item); err != nil {
		return err
	}
	if err := q.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to remove inflight item %s: %w", key, err)
	}
	return nil
}

// RequeueExpired returns expired inflight items to pending.
func (q *Fs[T]) RequeueExpired(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.inflightDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list inflight items: %w", err)
	}
	now := clock.Now()
	moved := 0
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		item, err := q.read(ctx, object.URL())
		if err != nil {
			return moved, err
		}
		if !now.After(item.ExpiresAt) {
			continue
		}
		if err := q.requeue(ctx, item.Key); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// IsComplete reports whether the key has a recorded terminal outcome.
func (q *Fs[T]) IsComplete(ctx context.Context, key string) (bool, error) {
	exists, err := q.fs.Exists(ctx, q.dedupeLocation(key))
	if err != nil {
		return false, fmt.Errorf("failed to check dedupe marker %s: %w", key, err)
	}
	return exists, nil
}

func (q *Fs[T]) upload(ctx context.Context, location string, item *Item[T]) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", item.Key, err)
	}
	if err := q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write item %s: %w", item.Key, err)
	}
	return nil
}

func (q *Fs[T]) read(ctx context.Context, location string) (*Item[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read item %s: %w", location, err)
	}
	item := &Item[T]{}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %s: %w", location, err)
	}
	return item, nil
}

func (q *Fs[T]) pendingLocation(key string) string {
	return path.Join(q.pendingDir, key+".json")
}

func (q *Fs[T]) inflightLocation(key string) string {
	return path.Join(q.inflightDir, key+".json")
}

func (q *Fs[T]) dedupeLocation(key string) string {
	return path.Join(q.dedupeDir, key+".json")
}
