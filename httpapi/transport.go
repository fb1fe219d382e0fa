package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"vns/core"
)

// Transport is an HTTP fan-out implementation of core.Transport: Publish
// POSTs the delta to every configured peer's /push-delta endpoint, and
// Subscribe just registers the handler the server's handlePushDelta calls
// on inbound requests.
type Transport struct {
	client *http.Client

	peerMu sync.RWMutex
	peers  []string

	handlerMu sync.RWMutex
	handler   core.InboundDeltaHandler
}

// NewTransport constructs an HTTP Transport fanning out to peers, each a
// base URL like "http://10.0.0.2:8787".
func NewTransport(peers []string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	peersCopy := make([]string, len(peers))
	copy(peersCopy, peers)
	return &Transport{
		client: &http.Client{Timeout: timeout},
		peers:  peersCopy,
	}
}

// SetPeers replaces the fan-out peer list.
func (t *Transport) SetPeers(peers []string) {
	peersCopy := make([]string, len(peers))
	copy(peersCopy, peers)
	t.peerMu.Lock()
	t.peers = peersCopy
	t.peerMu.Unlock()
}

// Publish implements core.Transport: it POSTs to every known peer in
// parallel with the transport's configured timeout and reports
// core.TransportOk if at least one accepted the delta, or
// core.TransportUnavailableResult if none did; a single slow or unreachable
// peer never back-pressures the others (§4.6).
func (t *Transport) Publish(d core.Delta) (core.TransportResult, error) {
	t.peerMu.RLock()
	peers := t.peers
	t.peerMu.RUnlock()

	if len(peers) == 0 {
		return core.TransportUnavailableResult, nil
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return core.TransportUnavailableResult, fmt.Errorf("httpapi: marshal delta: %w", err)
	}

	var accepted int32
	var wg sync.WaitGroup
	wg.Add(len(peers))
	for _, peer := range peers {
		go func(peer string) {
			defer wg.Done()
			resp, err := t.client.Post(peer+"/push-delta", "application/json", bytes.NewReader(raw))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				atomic.AddInt32(&accepted, 1)
			}
		}(peer)
	}
	wg.Wait()

	if accepted == 0 {
		return core.TransportUnavailableResult, nil
	}
	return core.TransportOk, nil
}

// Subscribe implements core.Transport. The Server's handlePushDelta route
// invokes this handler for every inbound /push-delta request.
func (t *Transport) Subscribe(handler core.InboundDeltaHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// dispatch is called by the Server on every successfully decoded inbound
// delta and hands it to the subscribed handler (the Replicator's inbound
// path), so its own-origin check and logging run before the store's
// ApplyDelta sees the delta.
func (t *Transport) dispatch(d core.Delta, sourcePeer string) {
	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(d, sourcePeer)
	}
}
