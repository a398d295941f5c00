package inbox

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/model"
	"golang.org/x/crypto/blake2b"
)

// Fs is a filesystem-backed inbox over viant/afs.  Entries live under
// world/<key>/inbox/entries keyed by zero-padded seq so a listing reads in
// order; seen/ holds one marker per message id, keyed by the id's digest, and
// doubles as the dedupe set after acknowledgement.
type Fs struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

// Ensure Fs implements Service
var _ Service = (*Fs)(nil)

// NewFs creates a filesystem inbox rooted at baseURL.
func NewFs(fs afs.Service, baseURL string) (*Fs, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	return &Fs{baseURL: url.Normalize(baseURL, file.Scheme), fs: fs}, nil
}

// Enqueue inserts an entry unless its id was already seen for the world.
func (s *Fs) Enqueue(ctx context.Context, world model.WorldID, entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := s.seenLocation(world, entry.ID)
	exists, err := s.fs.Exists(ctx, marker)
	if err != nil {
		return fmt.Errorf("failed to check message %s for %s: %w", entry.ID, world, err)
	}
	if exists {
		return fmt.Errorf("world %s message %s: %w", world, entry.ID, ErrDuplicate)
	}
	seq, err := s.nextSeq(ctx, world)
	if err != nil {
		return err
	}
	stored := *entry
	stored.Seq = seq

	// Marker first: a crash after this point may strand an id without an
	// entry, which only suppresses a redelivery of the same message.
	if err := s.fs.Upload(ctx, marker, file.DefaultFileOsMode, bytes.NewReader([]byte("{}"))); err != nil {
		return fmt.Errorf("failed to write seen marker %s for %s: %w", entry.ID, world, err)
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s for %s: %w", entry.ID, world, err)
	}
	if err := s.fs.Upload(ctx, s.entryLocation(world, seq), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write entry %s for %s: %w", entry.ID, world, err)
	}
	return nil
}

// Drain returns up to max unacknowledged entries in seq order.
func (s *Fs) Drain(ctx context.Context, world model.WorldID, max int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entriesDir := path.Join(s.baseURL, "world", world.Key(), "inbox", "entries")
	exists, err := s.fs.Exists(ctx, entriesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to check inbox for %s: %w", world, err)
	}
	if !exists {
		return nil, nil
	}
	objects, err := s.fs.List(ctx, entriesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox for %s: %w", world, err)
	}
	var files []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			files = append(files, object)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	var result []*Entry
	for _, object := range files {
		if max > 0 && len(result) >= max {
			break
		}
		data, err := s.fs.DownloadWithURL(ctx, object.URL())
		if err != nil {
			return nil, fmt.Errorf("failed to read inbox entry %s: %w", object.URL(), err)
		}
		entry := &Entry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inbox entry %s: %w", object.URL(), err)
		}
		result = append(result, entry)
	}
	return result, nil
}

// Ack removes entries by id; the seen markers stay so redelivery is refused.
func (s *Fs) Ack(ctx context.Context, world model.WorldID, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	acked := make(map[string]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}
	entries, err := s.Drain(ctx, world, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if !acked[entry.ID] {
			continue
		}
		if err := s.fs.Delete(ctx, s.entryLocation(world, entry.Seq)); err != nil {
			return fmt.Errorf("failed to remove inbox entry %s for %s: %w", entry.ID, world, err)
		}
	}
	return nil
}

func (s *Fs) nextSeq(ctx context.Context, world model.WorldID) (uint64, error) {
	location := path.Join(s.baseURL, "world", world.Key(), "inbox", "seq")
	var seq uint64 = 1
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("failed to check inbox seq for %s: %w", world, err)
	}
	if exists {
		data, err := s.fs.DownloadWithURL(ctx, location)
		if err != nil {
			return 0, fmt.Errorf("failed to read inbox seq for %s: %w", world, err)
		}
		last, err := strconv.ParseUint(string(bytes.TrimSpace(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse inbox seq for %s: %w", world, err)
		}
		seq = last + 1
	}
	data := []byte(strconv.FormatUint(seq, 10))
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return 0, fmt.Errorf("failed to advance inbox seq for %s: %w", world, err)
	}
	return seq, nil
}

func (s *Fs) entryLocation(world model.WorldID, seq uint64) string {
	return path.Join(s.baseURL, "world", world.Key(), "inbox", "entries", fmt.Sprintf("%020d.json", seq))
}

// seenLocation keys the marker by a digest of the id: message ids arrive from
// the outside and must never influence the path layout.
func (s *Fs) seenLocation(world model.WorldID, id string) string {
	digest := blake2b.Sum256([]byte(id))
	return path.Join(s.baseURL, "world", world.Key(), "inbox", "seen", hex.EncodeToString(digest[:])+".json")
}
