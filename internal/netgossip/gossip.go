// Package netgossip implements core.Transport over a libp2p gossip topic.
//
// libp2p.New brings up the host, pubsub.NewGossipSub joins a single fixed
// delta topic, mDNS discovery dials newly found peers via HandlePeerFound,
// and dialSeeds connects configured bootstrap peers directly. Publish
// returns core.TransportUnavailableResult rather than swallowing errors.
package netgossip

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"vns/core"
)

// deltaTopic is the single pubsub topic every VNS peer joins (§4.6).
const deltaTopic = "vns/delta/v1"

// Config configures a Node.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// Node is a libp2p-backed core.Transport.
type Node struct {
	host   hostCloser
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger

	peerMu sync.RWMutex
	peers  map[string]struct{}

	handlerMu sync.RWMutex
	handler   core.InboundDeltaHandler
}

// hostCloser is the subset of host.Host this package depends on, named here
// so the field type doesn't force every caller to import libp2p/core/host.
type hostCloser interface {
	ID() peer.ID
	Close() error
	Connect(ctx context.Context, pi peer.AddrInfo) error
}

// New bootstraps a libp2p node, joins the delta topic and dials the
// configured bootstrap peers. mDNS discovery connects LAN peers
// automatically (§4.6).
func New(cfg Config, logger logrus.FieldLogger) (*Node, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("netgossip: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("netgossip: create pubsub: %w", err)
	}

	topic, err := ps.Join(deltaTopic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("netgossip: join topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("netgossip: subscribe topic: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topic:  topic,
		sub:    sub,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		peers:  make(map[string]struct{}),
	}

	if err := n.dialSeeds(cfg.BootstrapPeers); err != nil {
		logger.Printf("netgossip: bootstrap warning: %v", err)
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, n)

	go n.readLoop()

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound connects to a peer discovered via mDNS (§4.6).
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	n.peerMu.RLock()
	_, known := n.peers[info.ID.String()]
	n.peerMu.RUnlock()
	if known {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.logger.Printf("netgossip: mdns connect to %s failed: %v", info.ID, err)
		return
	}
	n.peerMu.Lock()
	n.peers[info.ID.String()] = struct{}{}
	n.peerMu.Unlock()
	n.logger.Printf("netgossip: connected to %s via mdns", info.ID)
}

func (n *Node) dialSeeds(seeds []string) error {
	var failed int
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			n.logger.Printf("netgossip: invalid bootstrap addr %s: %v", addr, err)
			failed++
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			n.logger.Printf("netgossip: dial %s failed: %v", addr, err)
			failed++
			continue
		}
		n.peerMu.Lock()
		n.peers[pi.ID.String()] = struct{}{}
		n.peerMu.Unlock()
	}
	if failed == len(seeds) && len(seeds) > 0 {
		return fmt.Errorf("netgossip: all %d bootstrap peers unreachable", len(seeds))
	}
	return nil
}

// PeerCount reports the number of peers this node has ever connected to.
func (n *Node) PeerCount() int {
	n.peerMu.RLock()
	defer n.peerMu.RUnlock()
	return len(n.peers)
}

//---------------------------------------------------------------------
// core.Transport
//---------------------------------------------------------------------

// Publish implements core.Transport. It reports
// core.TransportUnavailableResult, not an error, when the local node has no
// topic peers to gossip to (§4.6): that is the queue-and-retry signal, not a
// failure.
func (n *Node) Publish(d core.Delta) (core.TransportResult, error) {
	if len(n.topic.ListPeers()) == 0 {
		return core.TransportUnavailableResult, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return core.TransportUnavailableResult, fmt.Errorf("netgossip: marshal delta: %w", err)
	}
	if err := n.topic.Publish(n.ctx, raw); err != nil {
		return core.TransportUnavailableResult, fmt.Errorf("netgossip: publish: %w", err)
	}
	return core.TransportOk, nil
}

// Subscribe implements core.Transport. Only one handler may be registered;
// a later call replaces the former.
func (n *Node) Subscribe(handler core.InboundDeltaHandler) {
	n.handlerMu.Lock()
	n.handler = handler
	n.handlerMu.Unlock()
}

func (n *Node) readLoop() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			n.logger.Printf("netgossip: subscription closed: %v", err)
			return
		}
		if msg.GetFrom() == n.host.ID() {
			continue
		}
		var d core.Delta
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			n.logger.Printf("netgossip: malformed delta from %s: %v", msg.GetFrom(), err)
			continue
		}
		n.handlerMu.RLock()
		handler := n.handler
		n.handlerMu.RUnlock()
		if handler != nil {
			handler(d, msg.GetFrom().String())
		}
	}
}

// Close tears down the node.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}
