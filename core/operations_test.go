package core

import (
	"errors"
	"testing"
	"time"
)

func TestRegister_NewAndUpdate(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()

	reg := signedRegistration(priv, "register.vfs", "owner-1", nil, 1_700_000_000_000)
	result, err := store.Register(reg, "peer-1")
	if err != nil {
		t.Fatalf("initial register: %v", err)
	}
	if result.Version != 1 {
		t.Fatalf("expected version 1, got %d", result.Version)
	}

	updated := signedRegistration(priv, "register.vfs", "owner-1", []Record{{Type: RecordTEXT, Value: "v2"}}, 1_700_000_001_000)
	result, err = store.Register(updated, "peer-1")
	if err != nil {
		t.Fatalf("update register: %v", err)
	}
	if result.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", result.Version)
	}
}

func TestRegister_StaleRejected(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()

	first := signedRegistration(priv, "stale.vfs", "owner-1", nil, 1_700_000_001_000)
	if _, err := store.Register(first, "peer-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	stale := signedRegistration(priv, "stale.vfs", "owner-1", nil, 1_700_000_000_000)
	_, err := store.Register(stale, "peer-1")
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for a non-increasing timestamp, got %v", err)
	}

	equal := signedRegistration(priv, "stale.vfs", "owner-1", nil, 1_700_000_001_000)
	_, err = store.Register(equal, "peer-1")
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for an equal timestamp (LWW keeps incumbent on ties), got %v", err)
	}
}

func TestRegister_ReservedNameRejected(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()

	reg := signedRegistration(priv, "root.vfs", "owner-1", nil, 1_700_000_000_000)
	_, err := store.Register(reg, "peer-1")
	if !errors.Is(err, ErrReserved) {
		t.Fatalf("expected ErrReserved for root.vfs, got %v", err)
	}
}

func TestRegister_BlobIOAbortsMutation(t *testing.T) {
	store := NewNamespaceStore(failingBlobStore{}, testAdmission(1_700_000_000_000), StoreConfig{LocalPeerID: "local-peer"})
	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	_, priv := newKeypair()

	reg := signedRegistration(priv, "blobfail.vfs", "owner-1", nil, 1_700_000_000_000)
	_, err := store.Register(reg, "peer-1")
	if !errors.Is(err, ErrBlobIO) {
		t.Fatalf("expected ErrBlobIO, got %v", err)
	}
	if res := store.Resolve("blobfail.vfs"); res.Status != ResolveNotFound {
		t.Fatalf("a failed blob put must not install the entry, got status %v", res.Status)
	}
}

func TestResolve_NotFoundAndExpired(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	if res := store.Resolve("missing.vfs"); res.Status != ResolveNotFound {
		t.Fatalf("expected ResolveNotFound, got %v", res.Status)
	}

	_, priv := newKeypair()
	reg := signedRegistration(priv, "shortlived.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000 + leaseMs + 1) }
	if res := store.Resolve("shortlived.vfs"); res.Status != ResolveExpired {
		t.Fatalf("expected ResolveExpired once now >= expires_ms, got %v", res.Status)
	}
}

func TestResolve_NeverDeletesExpiredEntry(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()
	reg := signedRegistration(priv, "lingering.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := store.Len()

	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000 + leaseMs + 1) }
	store.Resolve("lingering.vfs")

	if store.Len() != before {
		t.Fatal("Resolve must never delete an expired entry; only SweepExpired does")
	}
}

func TestTransfer_Success(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, ownerPriv := newKeypair()

	reg := signedRegistration(ownerPriv, "transfer.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	nowMs := int64(1_700_000_005_000)
	sig := ed25519SignTransfer(ownerPriv, "transfer.vfs", "owner-2", nowMs)
	result, err := store.Transfer("transfer.vfs", "owner-2", sig, nowMs, "peer-1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Version != 2 {
		t.Fatalf("expected version 2 after transfer, got %d", result.Version)
	}

	res := store.Resolve("transfer.vfs")
	if res.Owner != "owner-2" {
		t.Fatalf("expected new owner owner-2, got %q", res.Owner)
	}
	if names := store.NamesOwnedBy("owner-1"); len(names) != 0 {
		t.Fatalf("owner-1's reverse index should be empty after transfer, got %v", names)
	}
	if names := store.NamesOwnedBy("owner-2"); len(names) != 1 || names[0] != "transfer.vfs" {
		t.Fatalf("owner-2 should now own transfer.vfs, got %v", names)
	}
}

func TestTransfer_BadSignatureRejected(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, ownerPriv := newKeypair()
	_, attackerPriv := newKeypair()

	reg := signedRegistration(ownerPriv, "guarded.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	nowMs := int64(1_700_000_005_000)
	forgedSig := ed25519SignTransfer(attackerPriv, "guarded.vfs", "attacker-owner", nowMs)
	_, err := store.Transfer("guarded.vfs", "attacker-owner", forgedSig, nowMs, "peer-1")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for a signature not from the current owner, got %v", err)
	}
}

func TestTransfer_NotFoundAndExpired(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()

	_, err := store.Transfer("nosuchname.vfs", "owner-2", nil, 1_700_000_000_000, "peer-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reg := signedRegistration(priv, "expiring.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	afterExpiry := int64(1_700_000_000_000 + leaseMs + 1)
	store.clock = func() time.Time { return time.UnixMilli(afterExpiry) }

	nowMs := afterExpiry
	sig := ed25519SignTransfer(priv, "expiring.vfs", "owner-2", nowMs)
	_, err = store.Transfer("expiring.vfs", "owner-2", sig, nowMs, "peer-1")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired for an already-expired name, got %v", err)
	}
}

func TestTransfer_ReservedNameRejected(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, err := store.Transfer("admin.vfs", "owner-2", nil, 1_700_000_000_000, "peer-1")
	if !errors.Is(err, ErrReserved) {
		t.Fatalf("expected ErrReserved for admin.vfs, got %v", err)
	}
}

func TestTransfer_StrictTransferRejectsSingleSignature(t *testing.T) {
	blobs := newMemBlobStore()
	store := NewNamespaceStore(blobs, testAdmission(1_700_000_000_000), StoreConfig{
		LocalPeerID:    "local-peer",
		StrictTransfer: true,
	})
	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	_, priv := newKeypair()
	reg := signedRegistration(priv, "strict.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	nowMs := int64(1_700_000_005_000)
	sig := ed25519SignTransfer(priv, "strict.vfs", "owner-2", nowMs)
	_, err := store.Transfer("strict.vfs", "owner-2", sig, nowMs, "peer-1")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected single-signature transfer to be rejected under strict_transfer, got %v", err)
	}
}

func TestSweepExpired_RemovesOnlyExpiredNonReserved(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()

	expiring := signedRegistration(priv, "expiring.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(expiring, "peer-1"); err != nil {
		t.Fatalf("register expiring: %v", err)
	}

	// Registered 5s later, so its lease window ends 5s after expiring's.
	longLived := signedRegistration(priv, "longlived.vfs", "owner-1", nil, 1_700_000_005_000)
	if _, err := store.Register(longLived, "peer-1"); err != nil {
		t.Fatalf("register longlived: %v", err)
	}

	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000 + leaseMs + 1) }
	n := store.SweepExpired()
	if n != 1 {
		t.Fatalf("expected exactly 1 expired entry removed, got %d", n)
	}

	if res := store.Resolve("expiring.vfs"); res.Status != ResolveNotFound {
		t.Fatalf("expiring.vfs should be gone after sweep, got status %v", res.Status)
	}
	if res := store.Resolve("longlived.vfs"); res.Status != ResolveFound {
		t.Fatalf("longlived.vfs should survive the sweep, got status %v", res.Status)
	}
	for name := range ReservedNames {
		if res := store.Resolve(name); res.Status != ResolveFound {
			t.Fatalf("reserved name %s must never be swept, got status %v", name, res.Status)
		}
	}
}

func TestSweepExpired_Idempotent(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()
	reg := signedRegistration(priv, "onceonly.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	store.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000 + leaseMs + 1) }
	if n := store.SweepExpired(); n != 1 {
		t.Fatalf("first sweep should remove 1, got %d", n)
	}
	if n := store.SweepExpired(); n != 0 {
		t.Fatalf("second sweep should find nothing left to remove, got %d", n)
	}
}

func TestNamesOwnedBy_ReturnsACopy(t *testing.T) {
	store, _ := newTestStore(1_700_000_000_000)
	_, priv := newKeypair()
	reg := signedRegistration(priv, "owned.vfs", "owner-1", nil, 1_700_000_000_000)
	if _, err := store.Register(reg, "peer-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	names := store.NamesOwnedBy("owner-1")
	names[0] = "corrupted"
	if got := store.NamesOwnedBy("owner-1"); got[0] != "owned.vfs" {
		t.Fatal("NamesOwnedBy must return a defensive copy, not the live slice")
	}
}
