package p2p

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uhyunpark/meshbook/pkg/util"
)

// Announcement is what a peer advertises under a topic.
type Announcement struct {
	Topic string            `msgpack:"topic"`
	Peer  string            `msgpack:"peer"`
	Addrs []string          `msgpack:"addrs"`
	Meta  map[string]string `msgpack:"meta,omitempty"`
}

type entry struct {
	ann  Announcement
	seen time.Time
}

// Directory remembers recent announcements per topic. Entries older than
// ttl are treated as gone.
type Directory struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   util.Clock
	topics  map[string]map[string]entry
	changed chan struct{}
}

func NewDirectory(ttl time.Duration, clock util.Clock) *Directory {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Directory{
		ttl:     ttl,
		clock:   clock,
		topics:  make(map[string]map[string]entry),
		changed: make(chan struct{}),
	}
}

// Record stores or refreshes ann.
func (d *Directory) Record(ann Announcement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	peers := d.topics[ann.Topic]
	if peers == nil {
		peers = make(map[string]entry)
		d.topics[ann.Topic] = peers
	}
	_, known := peers[ann.Peer]
	peers[ann.Peer] = entry{ann: ann, seen: d.clock.Now()}

	if !known {
		close(d.changed)
		d.changed = make(chan struct{})
	}
}

// Forget drops peer from every topic.
func (d *Directory) Forget(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, peers := range d.topics {
		delete(peers, peer)
	}
}

// Lookup returns the live announcements under topic sorted by peer,
// leaving out exclude.
func (d *Directory) Lookup(topic, exclude string) []Announcement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(topic, exclude)
}

func (d *Directory) lookupLocked(topic, exclude string) []Announcement {
	now := d.clock.Now()
	var out []Announcement
	for id, e := range d.topics[topic] {
		if id == exclude {
			continue
		}
		if d.ttl > 0 && now.Sub(e.seen) > d.ttl {
			delete(d.topics[topic], id)
			continue
		}
		out = append(out, e.ann)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// Wait blocks until at least one live peer other than exclude is announced
// under topic, or ctx is done.
func (d *Directory) Wait(ctx context.Context, topic, exclude string) ([]Announcement, error) {
	for {
		d.mu.Lock()
		found := d.lookupLocked(topic, exclude)
		changed := d.changed
		d.mu.Unlock()

		if len(found) > 0 {
			return found, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctxErr(ctx)
		case <-changed:
		}
	}
}

func peerIDs(anns []Announcement) []string {
	ids := make([]string, len(anns))
	for i, a := range anns {
		ids[i] = a.Peer
	}
	return ids
}
