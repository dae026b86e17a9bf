package p2p

import (
	"fmt"

	libp2pproto "github.com/libp2p/go-libp2p/core/protocol"

	"github.com/uhyunpark/meshbook/pkg/protocol"
)

// requestProtocol is the stream protocol serving requests for topic.
func requestProtocol(topic string) libp2pproto.ID {
	return libp2pproto.ID(fmt.Sprintf("/%s/req/1.0.0", topic))
}

// announceTopic is the gossip topic announcements for topic travel on.
func announceTopic(topic string) string {
	return topic + "/announce"
}

func encodeAnnouncement(a Announcement) ([]byte, error) {
	return protocol.Encode(a)
}

func decodeAnnouncement(b []byte) (Announcement, error) {
	var a Announcement
	err := protocol.Decode(b, &a)
	return a, err
}
