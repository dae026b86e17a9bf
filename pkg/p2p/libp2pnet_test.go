package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/meshbook/pkg/protocol"
)

func TestLibp2pNet_RequestAndBroadcast(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real sockets")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := NewLibp2pNet(ctx, Libp2pConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	defer a.Close()

	seed := a.Host().Addrs()[0].String() + "/p2p/" + a.ID()
	b, err := NewLibp2pNet(ctx, Libp2pConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0", Bootstrap: []string{seed}})
	require.NoError(t, err)
	defer b.Close()

	a.OnRequest("rpc_exchange", func(_ context.Context, rid, key string, req protocol.Request) protocol.Response {
		return protocol.OK(key + "/" + req.Client)
	})
	b.OnRequest("rpc_exchange", func(context.Context, string, string, protocol.Request) protocol.Response {
		return protocol.OK("b")
	})

	// Keep announcing until the gossip mesh has formed.
	go func() {
		for ctx.Err() == nil {
			_ = a.Announce(ctx, "rpc_exchange", map[string]string{"role": "test"})
			time.Sleep(100 * time.Millisecond)
		}
	}()

	reqCtx, reqCancel := context.WithTimeout(ctx, 20*time.Second)
	defer reqCancel()
	resp, err := b.Request(reqCtx, "rpc_exchange", protocol.NewCancel(1, "client-b"))
	require.NoError(t, err)
	assert.Equal(t, protocol.OK("rpc_exchange/client-b"), resp)

	replies, err := b.Broadcast(ctx, "rpc_exchange", protocol.NewGetOrderBook())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, a.ID(), replies[0].Peer)
	assert.NoError(t, replies[0].Err)
	assert.Equal(t, []string{a.ID()}, b.Peers("rpc_exchange"))
}
