package core

import "fmt"

// ApplyStatus is the terminal state of the per-delta state machine
// Received → Validated → Merged | Discarded(reason) (§4.5).
type ApplyStatus int

const (
	ApplyMerged ApplyStatus = iota
	ApplyDiscarded
)

// ApplyDelta re-validates and merges an inbound delta under LWW (§4.3,
// §4.5 steps 2-5). The caller (Replicator) is responsible for step 1
// (dropping deltas whose origin is the local peer). Step 5 happens here:
// ApplyDelta re-emits only when the merged entry's owner is the local
// peer, since that is a fact only the store can observe while holding its
// lock.
func (s *NamespaceStore) ApplyDelta(delta Delta, sourcePeer string) (ApplyStatus, error) {
	reg := delta.Entry.Registration
	name := NormalizeName(reg.Name)

	if delta.Type == OpExpire {
		return s.applyExpireDelta(name)
	}

	if err := s.admission.Validate(reg, sourcePeer); err != nil {
		s.metrics.deltaDiscarded(ErrorKind(err))
		return ApplyDiscarded, err
	}
	if ReservedNames[name] {
		s.metrics.deltaDiscarded("Reserved")
		return ApplyDiscarded, admissionErr(ErrReserved, name)
	}

	raw := CanonicalBytes(reg)
	contentID, err := s.blobs.Put(raw)
	if err != nil {
		s.metrics.deltaDiscarded("BlobIO")
		return ApplyDiscarded, fmt.Errorf("%w: %v", ErrBlobIO, err)
	}

	s.mu.Lock()
	incumbent, exists := s.entries[name]
	if exists && reg.TimestampMs <= incumbent.Registration.TimestampMs {
		// §4.3 LWW: equal timestamps keep the incumbent; this is the
		// "keep incumbent" branch recorded as the cluster-wide decision
		// in DESIGN.md (the lexicographic content-id tiebreak is not
		// invoked in this implementation).
		s.mu.Unlock()
		s.metrics.deltaDiscarded("Stale")
		return ApplyDiscarded, admissionErr(ErrStale, name)
	}
	version := uint64(1)
	if exists {
		version = incumbent.Version + 1
	}
	entry := Entry{Registration: reg, ContentID: contentID, LastModifiedMs: reg.TimestampMs, Version: version}
	s.entries[name] = entry
	s.reindexOwnerLocked(name, ownerOf(incumbent, exists), reg.Owner)
	s.digest = s.digestLocked()
	snapshot := s.snapshotLocked()
	digest := s.digest
	localPeer := s.localPeerID
	s.mu.Unlock()

	if _, err := s.persistSnapshot(snapshot, digest); err != nil {
		s.logger.Printf("apply_delta: persist failed for %s: %v", name, err)
	}
	s.logger.Printf("apply_delta: merged %s %s v%d from %s", delta.Type, name, version, sourcePeer)
	s.metrics.deltaApplied(string(delta.Type))
	s.metrics.setNamespaceEntries(len(snapshot))

	if reg.Owner == localPeer && localPeer != "" {
		s.emitEvent(delta.Type, entry)
	}
	return ApplyMerged, nil
}

// applyExpireDelta removes name if present and already due to expire
// locally too (§4.5 step 3: "removes the entry if present and now >=
// entry.expires_ms; otherwise rejects").
func (s *NamespaceStore) applyExpireDelta(name string) (ApplyStatus, error) {
	if ReservedNames[name] {
		s.metrics.deltaDiscarded("Reserved")
		return ApplyDiscarded, admissionErr(ErrReserved, name)
	}
	now := s.nowMs()

	s.mu.Lock()
	cur, ok := s.entries[name]
	if !ok || now < cur.Registration.ExpiresMs {
		s.mu.Unlock()
		s.metrics.deltaDiscarded("NotFound")
		return ApplyDiscarded, ErrNotFound
	}
	delete(s.entries, name)
	s.ownerIndex[cur.Registration.Owner] = removeString(s.ownerIndex[cur.Registration.Owner], name)
	if len(s.ownerIndex[cur.Registration.Owner]) == 0 {
		delete(s.ownerIndex, cur.Registration.Owner)
	}
	s.digest = s.digestLocked()
	snapshot := s.snapshotLocked()
	digest := s.digest
	s.mu.Unlock()

	if _, err := s.persistSnapshot(snapshot, digest); err != nil {
		s.logger.Printf("apply_delta: persist failed after expiring %s: %v", name, err)
	}
	s.logger.Printf("apply_delta: expired %s", name)
	s.metrics.deltaApplied(string(OpExpire))
	s.metrics.setNamespaceEntries(len(snapshot))
	return ApplyMerged, nil
}
