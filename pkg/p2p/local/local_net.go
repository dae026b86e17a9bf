// Package local is an in-process p2p network. Every endpoint shares one
// directory, and payloads are copied through the wire codec so no memory is
// shared between endpoints.
package local

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/meshbook/pkg/p2p"
	"github.com/uhyunpark/meshbook/pkg/protocol"
)

// Network is a local network implementation.
type Network struct {
	mu    sync.Mutex
	peers map[string]*Transport
	down  map[string]bool
	dir   *p2p.Directory

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewNetwork() *Network {
	return &Network{
		peers: make(map[string]*Transport),
		down:  make(map[string]bool),
		dir:   p2p.NewDirectory(0, nil),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Join adds an endpoint named id.
func (n *Network) Join(id string) *Transport {
	t := &Transport{net: n, id: id, handlers: make(map[string]p2p.Handler)}
	n.mu.Lock()
	n.peers[id] = t
	n.mu.Unlock()
	return t
}

// SetDown makes requests to id fail until it is brought back up.
func (n *Network) SetDown(id string, down bool) {
	n.mu.Lock()
	n.down[id] = down
	n.mu.Unlock()
}

func (n *Network) deliver(ctx context.Context, to, topic string, req protocol.Request) (protocol.Response, error) {
	n.mu.Lock()
	t, ok := n.peers[to]
	down := n.down[to]
	n.mu.Unlock()
	if !ok || down {
		return protocol.Response{}, fmt.Errorf("peer not found: %s", to)
	}

	t.mu.Lock()
	h, ok := t.handlers[topic]
	t.mu.Unlock()
	if !ok {
		return protocol.Response{}, fmt.Errorf("peer %s does not serve %s", to, topic)
	}

	var in protocol.Request
	if err := protocol.Clone(req, &in); err != nil {
		return protocol.Response{}, err
	}

	done := make(chan protocol.Response, 1)
	go func() {
		done <- h(ctx, uuid.NewString(), topic, in)
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return protocol.Response{}, p2p.ErrTimeout
		}
		return protocol.Response{}, ctx.Err()
	case resp := <-done:
		var out protocol.Response
		if err := protocol.Clone(resp, &out); err != nil {
			return protocol.Response{}, err
		}
		return out, nil
	}
}

// Transport is one endpoint of a local Network.
type Transport struct {
	net *Network
	id  string

	mu       sync.Mutex
	handlers map[string]p2p.Handler
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Announce(_ context.Context, topic string, meta map[string]string) error {
	t.net.dir.Record(p2p.Announcement{Topic: topic, Peer: t.id, Addrs: []string{"local/" + t.id}, Meta: meta})
	return nil
}

func (t *Transport) Peers(topic string) []string {
	var ids []string
	for _, a := range t.net.dir.Lookup(topic, t.id) {
		ids = append(ids, a.Peer)
	}
	return ids
}

func (t *Transport) Request(ctx context.Context, topic string, req protocol.Request) (protocol.Response, error) {
	anns, err := t.net.dir.Wait(ctx, topic, t.id)
	if err != nil {
		return protocol.Response{}, err
	}
	t.net.rngMu.Lock()
	target := anns[t.net.rng.Intn(len(anns))]
	t.net.rngMu.Unlock()
	return t.net.deliver(ctx, target.Peer, topic, req)
}

func (t *Transport) Broadcast(ctx context.Context, topic string, req protocol.Request) ([]p2p.Reply, error) {
	peers := t.Peers(topic)
	if len(peers) == 0 {
		return nil, p2p.ErrNoPeers
	}

	replies := make([]p2p.Reply, len(peers))
	var wg sync.WaitGroup
	for i, id := range peers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			resp, err := t.net.deliver(ctx, id, topic, req)
			replies[i] = p2p.Reply{Peer: id, Response: resp, Err: err}
		}(i, id)
	}
	wg.Wait()
	return replies, nil
}

func (t *Transport) OnRequest(topic string, h p2p.Handler) {
	t.mu.Lock()
	t.handlers[topic] = h
	t.mu.Unlock()
}

var _ p2p.Transport = (*Transport)(nil)
