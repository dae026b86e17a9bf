package p2p

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/protocol"
	"github.com/uhyunpark/meshbook/pkg/util"
)

const (
	defaultPeerTTL        = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// Libp2pNet implements Transport on a libp2p host. Announcements travel over
// gossipsub; requests use one short-lived stream per request.
type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger
	dir *Directory

	ctx    context.Context
	cancel context.CancelFunc

	muTopics sync.Mutex
	topics   map[string]*pubsub.Topic

	rngMu sync.Mutex
	rng   *rand.Rand

	reqTimeout time.Duration
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	// PeerTTL is how long an announcement stays valid without a refresh.
	PeerTTL time.Duration
	// RequestTimeout bounds reading an inbound request and dialing a newly
	// announced peer.
	RequestTimeout time.Duration
	Clock          util.Clock
	Logger         *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen addr %q: %w", cfg.ListenAddr, err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, err
	}

	ttl := cfg.PeerTTL
	if ttl <= 0 {
		ttl = defaultPeerTTL
	}

	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}

	n := &Libp2pNet{
		h:          h,
		ps:         ps,
		log:        util.OrNop(cfg.Logger),
		dir:        NewDirectory(ttl, cfg.Clock),
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]*pubsub.Topic),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		reqTimeout: reqTimeout,
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			n.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	n.log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "addrs", n.addrs())
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) Host() host.Host { return n.h }

func (n *Libp2pNet) ID() string { return n.h.ID().String() }

// Close shuts the host down. Pending requests fail.
func (n *Libp2pNet) Close() error {
	n.cancel()
	return n.h.Close()
}

func (n *Libp2pNet) addrs() []string {
	var out []string
	for _, a := range n.h.Addrs() {
		out = append(out, a.String())
	}
	return out
}

// join subscribes to the announcement topic for topic once, so this host
// learns about peers before it needs them.
func (n *Libp2pNet) join(topic string) (*pubsub.Topic, error) {
	n.muTopics.Lock()
	defer n.muTopics.Unlock()

	if t, ok := n.topics[topic]; ok {
		return t, nil
	}
	t, err := n.ps.Join(announceTopic(topic))
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, err
	}
	n.topics[topic] = t
	go n.handleAnnouncements(sub)
	return t, nil
}

func (n *Libp2pNet) handleAnnouncements(sub *pubsub.Subscription) {
	defer sub.Cancel()
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		ann, err := decodeAnnouncement(msg.Data)
		if err != nil {
			n.log.Debugw("announcement_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		if ann.Peer == n.ID() {
			continue
		}
		if err := n.learn(ann); err != nil {
			n.log.Debugw("announcement_rejected", "peer", ann.Peer, "err", err)
			continue
		}
		n.dir.Record(ann)
	}
}

// learn stores the announced addresses and dials the peer if needed, which
// also grows the gossip mesh.
func (n *Libp2pNet) learn(ann Announcement) error {
	pid, err := peer.Decode(ann.Peer)
	if err != nil {
		return err
	}
	var addrs []ma.Multiaddr
	for _, s := range ann.Addrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			continue
		}
		addrs = append(addrs, a)
	}
	n.h.Peerstore().AddAddrs(pid, addrs, peerstore.TempAddrTTL)

	if n.h.Network().Connectedness(pid) != network.Connected {
		go func() {
			ctx, cancel := context.WithTimeout(n.ctx, n.reqTimeout)
			defer cancel()
			if err := n.h.Connect(ctx, peer.AddrInfo{ID: pid, Addrs: addrs}); err != nil {
				n.log.Debugw("peer_connect_failed", "peer", pid.String(), "err", err)
			}
		}()
	}
	return nil
}

func (n *Libp2pNet) Announce(ctx context.Context, topic string, meta map[string]string) error {
	t, err := n.join(topic)
	if err != nil {
		return err
	}
	data, err := encodeAnnouncement(Announcement{
		Topic: topic,
		Peer:  n.ID(),
		Addrs: n.addrs(),
		Meta:  meta,
	})
	if err != nil {
		return err
	}
	return t.Publish(ctx, data)
}

func (n *Libp2pNet) Peers(topic string) []string {
	if _, err := n.join(topic); err != nil {
		return nil
	}
	return peerIDs(n.dir.Lookup(topic, n.ID()))
}

func (n *Libp2pNet) Request(ctx context.Context, topic string, req protocol.Request) (protocol.Response, error) {
	if _, err := n.join(topic); err != nil {
		return protocol.Response{}, err
	}
	anns, err := n.dir.Wait(ctx, topic, n.ID())
	if err != nil {
		return protocol.Response{}, err
	}

	n.rngMu.Lock()
	target := anns[n.rng.Intn(len(anns))]
	n.rngMu.Unlock()

	return n.send(ctx, target.Peer, topic, req)
}

func (n *Libp2pNet) Broadcast(ctx context.Context, topic string, req protocol.Request) ([]Reply, error) {
	if _, err := n.join(topic); err != nil {
		return nil, err
	}
	anns := n.dir.Lookup(topic, n.ID())
	if len(anns) == 0 {
		return nil, ErrNoPeers
	}

	replies := make([]Reply, len(anns))
	var wg sync.WaitGroup
	for i, a := range anns {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			resp, err := n.send(ctx, id, topic, req)
			replies[i] = Reply{Peer: id, Response: resp, Err: err}
		}(i, a.Peer)
	}
	wg.Wait()
	return replies, nil
}

func (n *Libp2pNet) send(ctx context.Context, to, topic string, req protocol.Request) (protocol.Response, error) {
	pid, err := peer.Decode(to)
	if err != nil {
		return protocol.Response{}, err
	}
	s, err := n.h.NewStream(ctx, pid, requestProtocol(topic))
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Response{}, ctxErr(ctx)
		}
		return protocol.Response{}, fmt.Errorf("open stream to %s: %w", to, err)
	}
	defer s.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}

	env := protocol.Envelope{RID: uuid.NewString(), Key: topic, Request: req}
	if err := protocol.WriteMsg(s, env); err != nil {
		_ = s.Reset()
		return protocol.Response{}, err
	}
	if err := s.CloseWrite(); err != nil {
		_ = s.Reset()
		return protocol.Response{}, err
	}

	var resp protocol.Response
	if err := protocol.ReadMsg(s, &resp); err != nil {
		_ = s.Reset()
		if ctx.Err() != nil {
			return protocol.Response{}, ctxErr(ctx)
		}
		return protocol.Response{}, err
	}
	return resp, nil
}

func (n *Libp2pNet) OnRequest(topic string, h Handler) {
	if _, err := n.join(topic); err != nil {
		n.log.Errorw("topic_join_failed", "topic", topic, "err", err)
	}
	n.h.SetStreamHandler(requestProtocol(topic), func(s network.Stream) {
		n.serve(s, h)
	})
}

// serve reads one envelope off s and writes back the handler's response.
func (n *Libp2pNet) serve(s network.Stream, h Handler) {
	defer s.Close()
	_ = s.SetReadDeadline(time.Now().Add(n.reqTimeout))

	var env protocol.Envelope
	if err := protocol.ReadMsg(s, &env); err != nil {
		n.log.Debugw("request_decode_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
		_ = protocol.WriteMsg(s, protocol.Fail("malformed request"))
		return
	}

	resp := h(n.ctx, env.RID, env.Key, env.Request)
	if err := protocol.WriteMsg(s, resp); err != nil {
		n.log.Debugw("reply_failed", "rid", env.RID, "err", err)
		_ = s.Reset()
	}
}

var _ Transport = (*Libp2pNet)(nil)
