package core

import (
	"encoding/json"
	"fmt"
)

// manifestEntry is one row of the persisted manifest (§4.4).
type manifestEntry struct {
	Name      string `json:"name"`
	ContentID string `json:"content_id"`
}

// Manifest is the durable index of the namespace: every live non-reserved
// entry's name and content identifier, plus the digest at save time (never
// trusted on load — recomputed from scratch).
type Manifest struct {
	Version  int             `json:"version"`
	Digest   string          `json:"digest"`
	Entries  []manifestEntry `json:"entries"`
	SavedMs  int64           `json:"saved_ms"`
}

const manifestVersion = 1

// persistSnapshot writes every live non-reserved entry in snapshot and a
// manifest blob to the store's BlobStore, returning the manifest's content
// identifier. Reserved entries are never persisted; they are re-seeded on
// boot (§4.4). It takes a point-in-time snapshot rather than reading
// s.entries directly so it can run its I/O outside the store's exclusive
// section (§5's "compute outside, swap inside" mutation pattern).
func (s *NamespaceStore) persistSnapshot(snapshot map[string]Entry, digest string) (string, error) {
	m := Manifest{Version: manifestVersion, SavedMs: s.nowMs(), Digest: digest}
	for name, e := range snapshot {
		if ReservedNames[name] {
			continue
		}
		raw := CanonicalBytes(e.Registration)
		cid, err := s.blobs.Put(raw)
		if err != nil {
			return "", fmt.Errorf("%w: persist entry %s: %v", ErrBlobIO, name, err)
		}
		m.Entries = append(m.Entries, manifestEntry{Name: name, ContentID: cid})
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: marshal manifest: %v", ErrBlobIO, err)
	}
	manifestID, err := s.blobs.Put(raw)
	if err != nil {
		return "", fmt.Errorf("%w: persist manifest: %v", ErrBlobIO, err)
	}
	s.mu.Lock()
	s.manifestID = manifestID
	s.mu.Unlock()
	return manifestID, nil
}

// LoadManifest rebuilds the namespace from a previously-saved manifest
// identifier (§4.4). Reserved names are re-seeded afterward, independent of
// the manifest contents. Entries that fail re-validation are skipped and
// logged as Corrupt; the node proceeds with a degraded namespace.
func (s *NamespaceStore) LoadManifest(manifestID string) error {
	raw, err := s.blobs.Get(manifestID)
	if err != nil {
		return fmt.Errorf("%w: load manifest %s: %v", ErrBlobIO, manifestID, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("%w: decode manifest: %v", ErrCorrupt, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := 0
	for _, me := range m.Entries {
		entryRaw, err := s.blobs.Get(me.ContentID)
		if err != nil {
			s.logger.Printf("persistence: skip %s, blob read failed: %v", me.Name, err)
			skipped++
			continue
		}
		var reg Registration
		if err := json.Unmarshal(entryRaw, &reg); err != nil {
			s.logger.Printf("persistence: skip %s, corrupt registration: %v", me.Name, err)
			skipped++
			continue
		}
		// Each entry gets its own quota-subject key: a shared "local-reload"
		// peer id would exhaust the rate limiter's per-peer quota after the
		// first DefaultRateLimit entries and spuriously reject the rest of a
		// larger namespace on reload.
		if err := s.admission.Validate(reg, "local-reload:"+me.Name); err != nil {
			s.logger.Printf("persistence: skip %s, re-validation failed: %v", me.Name, err)
			skipped++
			continue
		}
		s.entries[me.Name] = Entry{
			Registration:   reg,
			ContentID:      me.ContentID,
			LastModifiedMs: reg.TimestampMs,
			Version:        1,
		}
		s.ownerIndex[reg.Owner] = append(s.ownerIndex[reg.Owner], me.Name)
	}

	s.seedReservedLocked()
	s.digest = s.digestLocked()
	s.manifestID = manifestID
	s.degraded = skipped > 0
	s.skippedOnLoad = skipped
	if skipped > 0 {
		s.logger.Printf("persistence: boot degraded, %d entries skipped", skipped)
	}
	s.metrics.setNamespaceEntries(len(s.entries))
	return nil
}

// ManifestID returns the content identifier of the last-saved manifest, or
// "" if the store has never persisted.
func (s *NamespaceStore) ManifestID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifestID
}

// Degraded reports whether the namespace booted with skipped (Corrupt)
// entries, and how many were skipped.
func (s *NamespaceStore) Degraded() (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded, s.skippedOnLoad
}
