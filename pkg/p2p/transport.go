// Package p2p is the peer substrate nodes talk over: best-effort
// announcement of reachability under a topic, point-to-point request/reply
// and fan-out requests. Delivery is not ordered and not exactly-once.
package p2p

import (
	"context"
	"errors"

	"github.com/uhyunpark/meshbook/pkg/protocol"
)

var (
	ErrNoPeers = errors.New("no peers announced for topic")
	ErrTimeout = errors.New("request timed out")
)

// Handler serves one inbound request. Its return value is written back as
// the request's only reply.
type Handler func(ctx context.Context, rid, key string, req protocol.Request) protocol.Response

// Reply is the outcome of a fan-out request to a single peer.
type Reply struct {
	Peer     string
	Response protocol.Response
	Err      error
}

type Transport interface {
	// ID identifies this endpoint among its peers.
	ID() string
	// Announce advertises this endpoint under topic. Callers repeat it
	// periodically; announcements expire if not refreshed.
	Announce(ctx context.Context, topic string, meta map[string]string) error
	// Request sends req to one arbitrary peer announced under topic. It waits
	// for a peer to show up until ctx is done.
	Request(ctx context.Context, topic string, req protocol.Request) (protocol.Response, error)
	// Broadcast sends req to every peer currently announced under topic and
	// collects one Reply per peer.
	Broadcast(ctx context.Context, topic string, req protocol.Request) ([]Reply, error)
	// OnRequest installs the handler for requests addressed to topic.
	OnRequest(topic string, h Handler)
	// Peers lists the live peers announced under topic, excluding self.
	Peers(topic string) []string
}

// ctxErr maps a finished context to ErrTimeout when its deadline passed.
func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
