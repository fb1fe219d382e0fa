package core

// TransportResult is the outcome of a single publish attempt.
type TransportResult int

const (
	// TransportOk means at least one peer accepted the delta.
	TransportOk TransportResult = iota
	// TransportUnavailableResult means no peer accepted it; the caller
	// should queue the delta for later replay.
	TransportUnavailableResult
)

// InboundDeltaHandler is invoked by a Transport for every inbound delta,
// at-least-once; duplicates are tolerated because apply is idempotent
// under LWW (§4.6).
type InboundDeltaHandler func(d Delta, sourcePeer string)

// Transport is the pluggable carrier Replicator binds NamespaceStore
// mutations to (§4.6). Two concrete implementations are contemplated: a
// gossip topic (package netgossip) and an HTTP fan-out (package httpapi).
type Transport interface {
	// Publish sends d to the transport's peers. It returns
	// TransportUnavailableResult (not an error) when no peer accepted the
	// delta so the caller can queue it; it returns a non-nil error only for
	// unexpected local failures.
	Publish(d Delta) (TransportResult, error)
	// Subscribe registers handler to be invoked for every inbound delta.
	// Implementations may call handler from multiple goroutines.
	Subscribe(handler InboundDeltaHandler)
}
