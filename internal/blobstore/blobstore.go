// Package blobstore is a filesystem-backed reference implementation of
// core.BlobStore, content-addressed by a CIDv1 computed from a SHA-256
// multihash of the payload.
//
// One file per entry, capacity-bounded with insertion-order eviction; no
// remote gateway round trip, since BlobStore is a purely local interface
// here.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	mb "github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// DefaultMaxEntries bounds the on-disk cache before insertion-order
// (oldest-first) eviction kicks in.
const DefaultMaxEntries = 100_000

type entry struct {
	path string
	size int64
	at   time.Time
}

// Store is a disk-backed, capacity-bounded content-addressed store that
// evicts the oldest-inserted blob first; reads do not change eviction order.
type Store struct {
	mu    sync.Mutex
	dir   string
	max   int
	index map[string]*entry
	order []*entry
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create dir: %w", err)
	}
	s := &Store{dir: dir, max: maxEntries, index: make(map[string]*entry)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload populates the in-memory index from files already on disk, so a
// restarted node recognizes content it already holds.
func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("blobstore: read dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := &entry{path: filepath.Join(s.dir, de.Name()), size: info.Size(), at: info.ModTime()}
		s.index[de.Name()] = e
		s.order = append(s.order, e)
	}
	return nil
}

// Put computes the CIDv1 of data and writes it to disk if not already
// present, returning the CID string as the content identifier.
func (s *Store) Put(data []byte) (string, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("blobstore: hash: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	id, err := c.StringOfBase(mb.Base32)
	if err != nil {
		return "", fmt.Errorf("blobstore: encode cid: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.index[id]; ok {
		e.at = time.Now()
		return id, nil
	}
	if len(s.index) >= s.max && len(s.order) > 0 {
		oldest := s.order[0]
		_ = os.Remove(oldest.path)
		delete(s.index, filepath.Base(oldest.path))
		s.order = s.order[1:]
	}

	path := filepath.Join(s.dir, id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write: %w", err)
	}
	e := &entry{path: path, size: int64(len(data)), at: time.Now()}
	s.index[id] = e
	s.order = append(s.order, e)
	return id, nil
}

// Get returns the bytes previously stored under contentID.
func (s *Store) Get(contentID string) ([]byte, error) {
	s.mu.Lock()
	e, ok := s.index[contentID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blobstore: unknown content id %s", contentID)
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read: %w", err)
	}
	s.mu.Lock()
	e.at = time.Now()
	s.mu.Unlock()
	return data, nil
}

// Len reports how many blobs are currently cached.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
