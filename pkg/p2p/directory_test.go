package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/meshbook/pkg/util"
)

func TestDirectory_ExpiresStaleAnnouncements(t *testing.T) {
	clock := util.NewManualClock(time.Unix(0, 0))
	d := NewDirectory(3*time.Second, clock)

	d.Record(Announcement{Topic: "rpc_exchange", Peer: "a"})
	clock.Advance(2 * time.Second)
	d.Record(Announcement{Topic: "rpc_exchange", Peer: "b"})
	assert.Equal(t, []string{"a", "b"}, peerIDs(d.Lookup("rpc_exchange", "")))

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"b"}, peerIDs(d.Lookup("rpc_exchange", "")))

	// A refresh keeps the peer alive.
	d.Record(Announcement{Topic: "rpc_exchange", Peer: "b"})
	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"b"}, peerIDs(d.Lookup("rpc_exchange", "")))
}

func TestDirectory_LookupExcludesSelfAndOtherTopics(t *testing.T) {
	d := NewDirectory(0, nil)
	d.Record(Announcement{Topic: "rpc_exchange", Peer: "self"})
	d.Record(Announcement{Topic: "rpc_exchange", Peer: "other"})
	d.Record(Announcement{Topic: "elsewhere", Peer: "third"})

	assert.Equal(t, []string{"other"}, peerIDs(d.Lookup("rpc_exchange", "self")))

	d.Forget("other")
	assert.Empty(t, d.Lookup("rpc_exchange", "self"))
}

func TestDirectory_WaitWakesOnAnnouncement(t *testing.T) {
	d := NewDirectory(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Record(Announcement{Topic: "rpc_exchange", Peer: "late"})
	}()

	anns, err := d.Wait(ctx, "rpc_exchange", "")
	require.NoError(t, err)
	assert.Equal(t, "late", anns[0].Peer)
}

func TestDirectory_WaitTimesOut(t *testing.T) {
	d := NewDirectory(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Wait(ctx, "rpc_exchange", "")
	assert.ErrorIs(t, err, ErrTimeout)
}
