package core

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// mutationEvent is handed to the Replicator worker over NamespaceStore's
// event channel after a mutation has been installed and persisted. The
// store never reentrantly invokes a transport callback; instead it sends
// on a channel that a dedicated worker drains, so store mutation and
// transport I/O never interleave on the same goroutine (DESIGN NOTES §9).
//
// result, when non-nil, is the worker's report of whether this delta ended
// up queued for later delivery rather than published immediately — the
// queued_for_propagation hint Register/Transfer surface over HTTP (§7).
type mutationEvent struct {
	op     DeltaOp
	entry  Entry
	result chan<- bool
}

// eventAckTimeout bounds how long emitEventAwait waits for the Replicator
// worker to report a delta's queued/published outcome before giving up and
// reporting "not queued" — it must never block a caller indefinitely when
// no Replicator is attached to drain the event channel.
const eventAckTimeout = 2 * time.Second

// NamespaceStore is the in-memory, content-addressed, signature-verified
// map from normalized name to the latest accepted registration (§4.3).
type NamespaceStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ownerIndex map[string][]string
	digest     string

	blobs     BlobStore
	admission *Admission
	logger    logrus.FieldLogger
	clock     func() time.Time

	localPeerID    string
	strictTransfer bool

	manifestID    string
	degraded      bool
	skippedOnLoad int

	events        chan mutationEvent
	hasReplicator int32 // set by Replicator.Start; guards emitEventAwait's wait
	metrics       *Metrics
}

// StoreConfig configures a NamespaceStore at construction.
type StoreConfig struct {
	LocalPeerID    string
	StrictTransfer bool
	Logger         logrus.FieldLogger
	Metrics        *Metrics
}

// NewNamespaceStore constructs a store with genesis reserved names already
// seeded (§3 "Reserved seeding").
func NewNamespaceStore(blobs BlobStore, admission *Admission, cfg StoreConfig) *NamespaceStore {
	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	s := &NamespaceStore{
		entries:        make(map[string]Entry),
		ownerIndex:     make(map[string][]string),
		blobs:          blobs,
		admission:      admission,
		logger:         logger,
		clock:          time.Now,
		localPeerID:    cfg.LocalPeerID,
		strictTransfer: cfg.StrictTransfer,
		events:         make(chan mutationEvent, DeltaQueueCapacity),
		metrics:        cfg.Metrics,
	}
	s.mu.Lock()
	s.seedReservedLocked()
	s.digest = s.digestLocked()
	s.mu.Unlock()
	s.metrics.setNamespaceEntries(len(ReservedNames))
	return s
}

func (s *NamespaceStore) nowMs() int64 { return s.clock().UnixMilli() }

// Events exposes the mutation event stream a Replicator worker drains.
func (s *NamespaceStore) Events() <-chan mutationEvent { return s.events }

// attachReplicator marks that a Replicator worker is now draining Events(),
// so emitEventAwait knows waiting for its report can actually resolve.
func (s *NamespaceStore) attachReplicator() { atomic.StoreInt32(&s.hasReplicator, 1) }

func (s *NamespaceStore) emitEvent(op DeltaOp, e Entry) {
	select {
	case s.events <- mutationEvent{op: op, entry: e}:
	default:
		s.logger.Printf("namespace: event channel full, dropping %s emission for %s", op, e.Registration.Name)
	}
}

// emitEventAwait behaves like emitEvent but, when a Replicator is attached,
// waits for its queued/published report, up to eventAckTimeout. With no
// Replicator attached there is nothing to report, so it degrades to a plain
// emitEvent and returns false immediately rather than waiting out the
// timeout on every call.
func (s *NamespaceStore) emitEventAwait(op DeltaOp, e Entry) bool {
	if atomic.LoadInt32(&s.hasReplicator) == 0 {
		s.emitEvent(op, e)
		return false
	}
	result := make(chan bool, 1)
	select {
	case s.events <- mutationEvent{op: op, entry: e, result: result}:
	default:
		s.logger.Printf("namespace: event channel full, dropping %s emission for %s", op, e.Registration.Name)
		return false
	}
	select {
	case queued := <-result:
		return queued
	case <-time.After(eventAckTimeout):
		return false
	}
}

//---------------------------------------------------------------------
// Reserved seeding
//---------------------------------------------------------------------

// seedReservedLocked materializes the four reserved names if absent. Must
// be called with s.mu held. Idempotent: safe to call again on manifest
// reload without disturbing already-seeded entries.
func (s *NamespaceStore) seedReservedLocked() {
	for name := range ReservedNames {
		if _, ok := s.entries[name]; ok {
			continue
		}
		reg := Registration{
			Name:        name,
			Owner:       ReservedOwner,
			Records:     nil,
			TimestampMs: 0,
			ExpiresMs:   0,
		}
		s.entries[name] = Entry{Registration: reg, ContentID: "", LastModifiedMs: 0, Version: 1}
	}
}

//---------------------------------------------------------------------
// Digest
//---------------------------------------------------------------------

// digestLocked recomputes H = SHA-256(sort(content_id_i).join(":")) over
// every entry currently in the map, including reserved ones. Must be
// called with at least a read lock held.
func (s *NamespaceStore) digestLocked() string {
	ids := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		ids = append(ids, e.ContentID)
	}
	sort.Strings(ids)
	joined := ""
	for i, id := range ids {
		if i > 0 {
			joined += ":"
		}
		joined += id
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// Digest returns the current namespace digest H.
func (s *NamespaceStore) Digest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digest
}

// Len reports how many entries the namespace currently holds, including
// reserved names.
func (s *NamespaceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
