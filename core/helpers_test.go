package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// memBlobStore is an in-memory, content-hash-addressed BlobStore for tests,
// grounded in the same Put/Get contract internal/blobstore implements
// against the filesystem. Identifiers are content hashes, not counters, so
// two stores fed the same bytes in any order hand out identical ids — the
// property LWW-convergence assertions over digests depend on.
type memBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{data: make(map[string][]byte)}
}

func (b *memBlobStore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := "blob-" + hex.EncodeToString(sum[:8])
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), data...)
	b.data[id] = cp
	return id, nil
}

func (b *memBlobStore) Get(contentID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.data[contentID]
	if !ok {
		return nil, fmt.Errorf("no such blob %s", contentID)
	}
	return raw, nil
}

// failingBlobStore errors on every Put, for exercising BlobIO paths.
type failingBlobStore struct{}

func (failingBlobStore) Put([]byte) (string, error) { return "", fmt.Errorf("disk full") }
func (failingBlobStore) Get(string) ([]byte, error)  { return nil, fmt.Errorf("disk full") }

// testAdmission builds an Admission gate with PoW disabled and its clock
// pinned to nowMs, so tests can focus on store/replication semantics
// without paying for a PoW search or chasing the real wall clock (lease
// windows are computed relative to nowMs, not time.Now).
func testAdmission(nowMs int64) *Admission {
	a := NewAdmission(DefaultPoWDifficulty)
	a.AllowNoPoW = true
	a.clock = func() time.Time { return time.UnixMilli(nowMs) }
	return a
}

// signedRegistration mints a fully valid, signed Registration for name/owner
// at nowMs, the same shape cmd/cli/register.go builds: timestamp now,
// expires now+LeasePeriod, nonce "0" (PoW skipped), signed last over the
// canonical form.
func signedRegistration(priv ed25519.PrivateKey, name, owner string, records []Record, nowMs int64) Registration {
	reg := Registration{
		Name:        name,
		Owner:       owner,
		Records:     records,
		TimestampMs: nowMs,
		ExpiresMs:   nowMs + int64(LeasePeriod/time.Millisecond),
		Nonce:       "0",
		PublicKey:   []byte(priv.Public().(ed25519.PublicKey)),
	}
	reg.Signature = Sign(priv, reg)
	return reg
}

// ed25519SignTransfer signs the transfer-authorization tuple the way
// cmd/cli/transfer.go does.
func ed25519SignTransfer(priv ed25519.PrivateKey, name, newOwner string, nowMs int64) []byte {
	return ed25519.Sign(priv, TransferAuthBytes(name, newOwner, nowMs))
}

// leaseMs is LeasePeriod expressed in milliseconds, matching the unit
// Registration.TimestampMs/ExpiresMs use. validateStructure enforces every
// registration's lease window within LeaseTolerance of exactly this span,
// so tests that need an already-expired entry must advance the clock past
// baseMs+leaseMs rather than shortening ExpiresMs directly.
const leaseMs = int64(LeasePeriod / time.Millisecond)

func newKeypair() (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return pub, priv
}

// newTestStore builds a NamespaceStore over a fresh memBlobStore and a
// no-PoW Admission, with its clock pinned to nowMs so register/transfer/
// sweep scenarios are deterministic.
func newTestStore(nowMs int64) (*NamespaceStore, *memBlobStore) {
	blobs := newMemBlobStore()
	store := NewNamespaceStore(blobs, testAdmission(nowMs), StoreConfig{LocalPeerID: "local-peer"})
	store.clock = func() time.Time { return time.UnixMilli(nowMs) }
	return store, blobs
}
