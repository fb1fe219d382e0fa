package core

import (
	"fmt"
)

//---------------------------------------------------------------------
// register
//---------------------------------------------------------------------

// RegisterResult is returned by Register and Transfer on success.
// QueuedForPropagation reports whether the resulting delta was queued for
// later delivery rather than published immediately — TransportUnavailable
// is never surfaced to the caller as a failure, only as this hint (§7).
type RegisterResult struct {
	ContentID            string
	Version              uint64
	QueuedForPropagation bool
}

// Register validates, admits and installs reg under sourcePeer's quota
// (§4.3). It follows the canonical mutation shape of §5: canonical bytes
// are computed and put to the BlobStore outside any lock; the exclusive
// section only covers the LWW check, install, owner-index update and
// digest recompute; persistence and delta emission happen outside the
// section again, against a point-in-time snapshot taken while the section
// was held.
func (s *NamespaceStore) Register(reg Registration, sourcePeer string) (RegisterResult, error) {
	reg.Name = NormalizeName(reg.Name)

	if err := s.admission.Validate(reg, sourcePeer); err != nil {
		return RegisterResult{}, err
	}
	if ReservedNames[reg.Name] {
		return RegisterResult{}, admissionErr(ErrReserved, reg.Name)
	}

	raw := CanonicalBytes(reg)
	contentID, err := s.blobs.Put(raw)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrBlobIO, err)
	}

	op := OpRegister
	s.mu.Lock()
	incumbent, exists := s.entries[reg.Name]
	if exists {
		if reg.TimestampMs <= incumbent.Registration.TimestampMs {
			s.mu.Unlock()
			return RegisterResult{}, admissionErr(ErrStale, reg.Name)
		}
		op = OpUpdate
	}
	version := uint64(1)
	if exists {
		version = incumbent.Version + 1
	}
	entry := Entry{Registration: reg, ContentID: contentID, LastModifiedMs: reg.TimestampMs, Version: version}
	s.entries[reg.Name] = entry
	s.reindexOwnerLocked(reg.Name, ownerOf(incumbent, exists), reg.Owner)
	s.digest = s.digestLocked()
	snapshot := s.snapshotLocked()
	digest := s.digest
	s.mu.Unlock()

	if _, err := s.persistSnapshot(snapshot, digest); err != nil {
		s.logger.Printf("register: persist failed for %s: %v", reg.Name, err)
	}
	s.logger.Printf("register: %s %s v%d", op, reg.Name, version)
	s.metrics.setNamespaceEntries(len(snapshot))
	queued := s.emitEventAwait(op, entry)

	return RegisterResult{ContentID: contentID, Version: version, QueuedForPropagation: queued}, nil
}

func ownerOf(e Entry, exists bool) string {
	if !exists {
		return ""
	}
	return e.Registration.Owner
}

// snapshotLocked returns a shallow copy of the entries map. Must be called
// with s.mu held.
func (s *NamespaceStore) snapshotLocked() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// reindexOwnerLocked reconciles the reverse owner index after name's owner
// changes from oldOwner to newOwner. Must be called with s.mu held. The
// owner index may hold stale entries only transiently during a transfer;
// this call is that reconciliation (§3).
func (s *NamespaceStore) reindexOwnerLocked(name, oldOwner, newOwner string) {
	if oldOwner == newOwner {
		if newOwner == "" {
			return
		}
		if !containsString(s.ownerIndex[newOwner], name) {
			s.ownerIndex[newOwner] = append(s.ownerIndex[newOwner], name)
		}
		return
	}
	if oldOwner != "" {
		s.ownerIndex[oldOwner] = removeString(s.ownerIndex[oldOwner], name)
		if len(s.ownerIndex[oldOwner]) == 0 {
			delete(s.ownerIndex, oldOwner)
		}
	}
	if newOwner != "" {
		if !containsString(s.ownerIndex[newOwner], name) {
			s.ownerIndex[newOwner] = append(s.ownerIndex[newOwner], name)
		}
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

//---------------------------------------------------------------------
// resolve
//---------------------------------------------------------------------

// ResolveStatus distinguishes the three outcomes of Resolve.
type ResolveStatus int

const (
	ResolveFound ResolveStatus = iota
	ResolveNotFound
	ResolveExpired
)

// ResolveResult carries the record set for a found name. TTLHint is the
// smallest TTL across the name's records (the soonest a client-side cache
// of any part of the answer goes stale), or the default record TTL when
// the name has no records.
type ResolveResult struct {
	Status    ResolveStatus
	Records   []Record
	Owner     string
	ExpiresMs int64
	TTLHint   int64
}

// Resolve is a lookup-only read; it never touches the network and never
// deletes an expired entry (the sweep does that) (§4.3).
func (s *NamespaceStore) Resolve(name string) ResolveResult {
	name = NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return ResolveResult{Status: ResolveNotFound}
	}
	if !ReservedNames[name] && s.nowMs() >= e.Registration.ExpiresMs {
		return ResolveResult{Status: ResolveExpired}
	}
	ttlHint := int64(DefaultRecordTTL)
	for i, rec := range e.Registration.Records {
		if t := rec.normalizedTTL(); i == 0 || t < ttlHint {
			ttlHint = t
		}
	}
	return ResolveResult{
		Status:    ResolveFound,
		Records:   e.Registration.Records,
		Owner:     e.Registration.Owner,
		ExpiresMs: e.Registration.ExpiresMs,
		TTLHint:   ttlHint,
	}
}

//---------------------------------------------------------------------
// transfer
//---------------------------------------------------------------------

// Transfer reassigns name to newOwner, authorized by authSignature from the
// current owner's public key over (name, newOwner, nowMs) (§4.3). nowMs is
// supplied by the caller, not the store's clock: the signature is produced
// offline before the request is sent, so the tuple it covers must be the
// same (name, newOwner, nowMs) the caller actually signed. Replay and
// ordering are still enforced below via the same strictly-increasing
// TimestampMs check Register uses.
func (s *NamespaceStore) Transfer(name, newOwner string, authSignature []byte, nowMs int64, sourcePeer string) (RegisterResult, error) {
	name = NormalizeName(name)
	if ReservedNames[name] {
		return RegisterResult{}, admissionErr(ErrReserved, name)
	}

	s.mu.RLock()
	incumbent, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return RegisterResult{}, ErrNotFound
	}
	if s.nowMs() >= incumbent.Registration.ExpiresMs {
		return RegisterResult{}, ErrExpired
	}
	if s.strictTransfer {
		// Multi-signature transfer is a declared future extension point
		// (§4.3); the core never invents a scheme, it only refuses a
		// single-signature transfer when the operator opts in.
		return RegisterResult{}, admissionErr(ErrBadSignature, "strict_transfer requires multi-signature authorization, not implemented")
	}
	if !VerifyTransferAuth(incumbent.Registration.PublicKey, authSignature, name, newOwner, nowMs) {
		return RegisterResult{}, admissionErr(ErrBadSignature, "transfer auth")
	}

	updated := incumbent.Registration
	updated.Owner = newOwner
	updated.TimestampMs = nowMs

	raw := CanonicalBytes(updated)
	contentID, err := s.blobs.Put(raw)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrBlobIO, err)
	}

	s.mu.Lock()
	cur, ok := s.entries[name]
	if !ok || updated.TimestampMs <= cur.Registration.TimestampMs {
		s.mu.Unlock()
		return RegisterResult{}, admissionErr(ErrStale, name)
	}
	version := cur.Version + 1
	entry := Entry{Registration: updated, ContentID: contentID, LastModifiedMs: updated.TimestampMs, Version: version}
	s.entries[name] = entry
	s.reindexOwnerLocked(name, cur.Registration.Owner, newOwner)
	s.digest = s.digestLocked()
	snapshot := s.snapshotLocked()
	digest := s.digest
	s.mu.Unlock()

	if _, err := s.persistSnapshot(snapshot, digest); err != nil {
		s.logger.Printf("transfer: persist failed for %s: %v", name, err)
	}
	s.logger.Printf("transfer: %s -> %s v%d", name, newOwner, version)
	s.metrics.setNamespaceEntries(len(snapshot))
	queued := s.emitEventAwait(OpTransfer, entry)

	return RegisterResult{ContentID: contentID, Version: version, QueuedForPropagation: queued}, nil
}

//---------------------------------------------------------------------
// names_owned_by
//---------------------------------------------------------------------

// NamesOwnedBy returns the names currently owned by owner, O(1) via the
// reverse index (§4.3).
func (s *NamespaceStore) NamesOwnedBy(owner string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.ownerIndex[owner]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

//---------------------------------------------------------------------
// sweep_expired
//---------------------------------------------------------------------

// SweepExpired removes every non-reserved entry whose lease has elapsed,
// emitting an EXPIRE delta for each (§4.3). It is idempotent: a partially
// completed sweep leaves valid state, safe to resume on the next cadence
// tick (§5).
func (s *NamespaceStore) SweepExpired() int {
	now := s.nowMs()

	s.mu.Lock()
	var expired []Entry
	for name, e := range s.entries {
		if ReservedNames[name] {
			continue
		}
		if now >= e.Registration.ExpiresMs {
			expired = append(expired, e)
			delete(s.entries, name)
			s.ownerIndex[e.Registration.Owner] = removeString(s.ownerIndex[e.Registration.Owner], name)
			if len(s.ownerIndex[e.Registration.Owner]) == 0 {
				delete(s.ownerIndex, e.Registration.Owner)
			}
		}
	}
	if len(expired) > 0 {
		s.digest = s.digestLocked()
	}
	snapshot := s.snapshotLocked()
	digest := s.digest
	s.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	if _, err := s.persistSnapshot(snapshot, digest); err != nil {
		s.logger.Printf("sweep: persist failed: %v", err)
	}
	s.metrics.sweepRemoved(len(expired))
	s.metrics.setNamespaceEntries(len(snapshot))
	for _, e := range expired {
		s.logger.Printf("sweep: expired %s", e.Registration.Name)
		s.emitEvent(OpExpire, e)
	}
	return len(expired)
}
