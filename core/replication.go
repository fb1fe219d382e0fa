// Replication subsystem — last-write-wins delta propagation over a
// pluggable Transport (§4.5).
//
// NewReplicator(cfg, logger, store, transport) owns a Start/Stop
// goroutine lifecycle and serializes inbound/outbound delta activity
// through a channel-fed worker rather than a direct callback dispatch,
// logging and continuing on transport errors instead of failing the
// calling mutation.
package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReplicatorConfig tunes the Replicator.
type ReplicatorConfig struct {
	QueueCapacity int
}

// Replicator binds NamespaceStore mutations to an outbound Transport and
// feeds inbound deltas back into the store.
type Replicator struct {
	cfg       ReplicatorConfig
	logger    logrus.FieldLogger
	store     *NamespaceStore
	transport Transport
	queue     *DeltaQueue

	closing chan struct{}
	wg      sync.WaitGroup

	availMu     sync.Mutex
	isAvailable bool
}

// NewReplicator wires the subsystem together. Call Start to begin draining
// store mutation events and dispatching inbound deltas.
func NewReplicator(cfg ReplicatorConfig, logger logrus.FieldLogger, store *NamespaceStore, transport Transport) *Replicator {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DeltaQueueCapacity
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Replicator{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		transport:   transport,
		queue:       NewDeltaQueue(cfg.QueueCapacity),
		closing:     make(chan struct{}),
		isAvailable: true,
	}
}

// QueueLen reports the current outbound queue depth.
func (r *Replicator) QueueLen() int { return r.queue.Len() }

// Start launches the outbound worker (drains store.Events()) and
// subscribes to inbound deltas from the transport.
func (r *Replicator) Start() {
	r.store.attachReplicator()
	r.wg.Add(1)
	go r.outboundLoop()
	r.transport.Subscribe(r.handleInbound)
}

// Stop terminates the outbound worker gracefully.
func (r *Replicator) Stop() {
	close(r.closing)
	r.wg.Wait()
}

//---------------------------------------------------------------------
// Outbound path
//---------------------------------------------------------------------

func (r *Replicator) outboundLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.closing:
			return
		case ev := <-r.store.Events():
			r.emit(ev.op, ev.entry, ev.result)
		}
	}
}

// emit constructs a delta from a store mutation event and publishes it,
// queuing on unavailability (§4.5), then reports back on result (if the
// caller is waiting for one) whether the delta ended up queued.
func (r *Replicator) emit(op DeltaOp, entry Entry, result chan<- bool) {
	d := Delta{
		Type:        op,
		Entry:       entry,
		MerkleRoot:  r.store.Digest(),
		PeerID:      r.store.localPeerID,
		TimestampMs: time.Now().UnixMilli(),
	}
	queued := r.publishOrQueue(d)
	if result != nil {
		result <- queued
	}
}

// publishOrQueue reports whether d ended up queued rather than published.
func (r *Replicator) publishOrQueue(d Delta) bool {
	result, err := r.transport.Publish(d)
	if err != nil {
		r.logger.Printf("replication: publish %s %s failed: %v", d.Type, d.Entry.Registration.Name, err)
	}
	if err != nil || result == TransportUnavailableResult {
		if dropped := r.queue.Push(d); dropped {
			r.logger.Printf("replication: queue full, dropped oldest delta")
		}
		r.store.metrics.setQueueDepth(r.queue.Len())
		r.setAvailable(false)
		return true
	}
	r.store.metrics.setQueueDepth(r.queue.Len())
	r.setAvailable(true)
	return false
}

func (r *Replicator) setAvailable(ok bool) {
	r.availMu.Lock()
	wasUnavailable := !r.isAvailable
	r.isAvailable = ok
	r.availMu.Unlock()
	if ok && wasUnavailable {
		go r.Drain()
	}
}

// Drain replays the queue in FIFO order. A failed attempt re-enqueues the
// offending delta to the tail and stops until the next availability event
// (§4.5): the next drain resumes from whatever is now at the head, which
// may be a delta that was already retried once.
func (r *Replicator) Drain() {
	for {
		d, ok := r.queue.Pop()
		if !ok {
			return
		}
		result, err := r.transport.Publish(d)
		if err != nil || result == TransportUnavailableResult {
			r.queue.Push(d)
			r.store.metrics.setQueueDepth(r.queue.Len())
			if err != nil {
				r.logger.Printf("replication: drain publish failed: %v", err)
			}
			return
		}
		r.store.metrics.setQueueDepth(r.queue.Len())
	}
}

//---------------------------------------------------------------------
// Inbound path
//---------------------------------------------------------------------

func (r *Replicator) handleInbound(d Delta, sourcePeer string) {
	if d.PeerID == r.store.localPeerID && r.store.localPeerID != "" {
		return
	}
	status, err := r.store.ApplyDelta(d, sourcePeer)
	if status == ApplyDiscarded {
		r.logger.Printf("replication: discarded %s %s from %s: %v", d.Type, d.Entry.Registration.Name, sourcePeer, err)
		return
	}
	r.logger.Printf("replication: merged %s %s from %s", d.Type, d.Entry.Registration.Name, sourcePeer)
}
