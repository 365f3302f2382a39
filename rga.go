/*
Package rga implements a Replicated Growable Array, a sequence CRDT
for collaborative text. Any number of replicas apply insertions and
deletions concurrently, exchange node records in any order and with
arbitrary duplication, and converge to the same document.

Every inserted character gets an identifier minted from the replica's
Lamport clock; the identifier plus the id of the insertion anchor (the
"origin") pins the character's final position on every replica.
Deletion leaves a tombstone; reclamation is someone else's problem.
*/
package rga

import (
	"context"

	"github.com/cespare/xxhash"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/melatron/crdt-rga/lamport"
	"github.com/melatron/crdt-rga/protocol"
	"github.com/melatron/crdt-rga/utils"
)

type Options struct {
	// Src is this replica's id; must not be 0.
	Src    uint64
	Logger utils.Logger
	// HoseLimit bounds each subscriber queue, in records.
	HoseLimit int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NopLogger{}
	}
	if o.HoseLimit == 0 {
		o.HoseLimit = 1 << 16
	}
}

// Replica is one copy of the document. All methods are safe for
// concurrent use; there is no whole-structure lock.
type Replica struct {
	src   uint64
	clock *lamport.LocalClock
	nodes *xsync.MapOf[ID, *node]

	// queues fed with every new record, one per subscriber
	outq utils.CMap[string, *protocol.RecordQueue]

	opts Options
	log  utils.Logger
}

// New creates a replica with both sentinels in place.
func New(src uint64) (*Replica, error) {
	return NewReplica(Options{Src: src})
}

func NewReplica(opts Options) (*Replica, error) {
	if opts.Src == 0 {
		return nil, ErrZeroReplica
	}
	opts.SetDefaults()
	r := &Replica{
		src:   opts.Src,
		clock: lamport.NewClock(opts.Src),
		nodes: xsync.NewMapOf[ID, *node](),
		opts:  opts,
		log:   opts.Logger,
	}
	r.nodes.Store(StartID, &node{id: StartID, origin: StartID, sentinel: true})
	r.nodes.Store(EndID, &node{id: EndID, origin: StartID, sentinel: true})
	return r, nil
}

func (r *Replica) Src() uint64 {
	return r.src
}

// SentinelStart returns the id every document starts from.
func (r *Replica) SentinelStart() ID { return StartID }

// SentinelEnd returns the id no insertion may anchor on.
func (r *Replica) SentinelEnd() ID { return EndID }

// Progress is the replica's Lamport counter position.
func (r *Replica) Progress() uint64 {
	return r.clock.Current()
}

// InsertAfter places ch immediately after the node pred, subject to
// the placement rule for concurrent siblings. Inserting after a
// tombstone is fine; inserting after END or an unseen id is not.
func (r *Replica) InsertAfter(pred ID, ch rune) (ID, error) {
	if pred == EndID {
		return ID{}, ErrUnknownAnchor
	}
	if _, ok := r.nodes.Load(pred); !ok {
		return ID{}, ErrUnknownAnchor
	}
	id := r.clock.Tick()
	n := &node{id: id, origin: pred, ch: ch}
	r.nodes.Store(id, n)
	r.broadcast(n.snapshot(), "")
	return id, nil
}

// Delete tombstones the node. Idempotent; sentinels are immortal.
func (r *Replica) Delete(id ID) error {
	if id == StartID || id == EndID {
		return ErrDeleteSentinel
	}
	n, ok := r.nodes.Load(id)
	if !ok {
		return ErrUnknownNode
	}
	n.deleted.Store(true)
	r.broadcast(n.snapshot(), "")
	return nil
}

// ApplyRemote folds a node received from another replica into this
// one. It never fails: duplicates merge, out-of-order arrivals are
// stored and placed once (or before) their origin shows up.
func (r *Replica) ApplyRemote(in Node) {
	r.apply(in, "")
}

func (r *Replica) apply(in Node, from string) {
	r.clock.See(in.ID)
	if in.Sentinel || in.ID == StartID || in.ID == EndID {
		return
	}
	changed := false
	stored, loaded := r.nodes.LoadOrStore(in.ID, newNode(in))
	if !loaded {
		changed = true
	} else if in.Deleted && stored.deleted.CompareAndSwap(false, true) {
		// the id pins character and origin; the tombstone is the only
		// thing left to merge
		changed = true
	}
	if changed {
		r.broadcast(in, from)
	}
}

// DrainRecords applies a batch of wire records. Unparseable records
// are logged and skipped; replication must not fail.
func (r *Replica) DrainRecords(recs protocol.Records, from string) {
	for _, rec := range recs {
		n, err := ParseNodeRecord(rec)
		if err != nil {
			r.log.Warn("skipping bad record", "from", from, "err", err)
			continue
		}
		r.apply(n, from)
	}
}

// AddHose subscribes name to every record this replica emits from now
// on. An existing subscriber under the same name is replaced.
func (r *Replica) AddHose(name string) protocol.FeedCloser {
	q := protocol.NewRecordQueue(r.opts.HoseLimit)
	if old, loaded := r.outq.LoadAndDelete(name); loaded {
		r.log.Warn("replacing replication hose", "name", name)
		_ = old.Close()
	}
	r.outq.Store(name, q)
	return q
}

func (r *Replica) RemoveHose(name string) {
	if q, loaded := r.outq.LoadAndDelete(name); loaded {
		_ = q.Close()
	}
}

func (r *Replica) broadcast(n Node, except string) {
	rec := NodeRecord(n)
	r.outq.Range(func(name string, q *protocol.RecordQueue) bool {
		if name == except {
			return true
		}
		if err := q.Drain(context.Background(), protocol.Records{rec}); err != nil {
			// a stuck subscriber loses its hose, not the replica
			r.log.Warn("dropping replication hose", "name", name, "err", err)
			r.outq.Delete(name)
			_ = q.Close()
		}
		return true
	})
}

// AllNodes returns every stored node, sentinels and tombstones
// included, in ascending id order.
func (r *Replica) AllNodes() []Node {
	all := make([]Node, 0, r.nodes.Size())
	r.nodes.Range(func(_ ID, n *node) bool {
		all = append(all, n.snapshot())
		return true
	})
	sortNodes(all)
	return all
}

// SnapshotRecords encodes the full non-sentinel state for shipping to
// a fresh peer.
func (r *Replica) SnapshotRecords() protocol.Records {
	all := r.AllNodes()
	recs := make(protocol.Records, 0, len(all))
	for _, n := range all {
		if n.Sentinel {
			continue
		}
		recs = append(recs, NodeRecord(n))
	}
	return recs
}

// Node returns the stored node for an id.
func (r *Replica) Node(id ID) (Node, bool) {
	n, ok := r.nodes.Load(id)
	if !ok {
		return Node{}, false
	}
	return n.snapshot(), true
}

// FindByChar returns the smallest visible id carrying ch.
func (r *Replica) FindByChar(ch rune) (ID, bool) {
	var best ID
	found := false
	r.nodes.Range(func(id ID, n *node) bool {
		if n.ch == ch && n.visible() && (!found || id.Less(best)) {
			best, found = id, true
		}
		return true
	})
	return best, found
}

// NodeCount counts stored nodes, sentinels and tombstones included.
func (r *Replica) NodeCount() int {
	return r.nodes.Size()
}

func (r *Replica) VisibleCount() (count int) {
	r.nodes.Range(func(_ ID, n *node) bool {
		if n.visible() {
			count++
		}
		return true
	})
	return
}

func (r *Replica) TombstoneCount() (count int) {
	r.nodes.Range(func(_ ID, n *node) bool {
		if !n.sentinel && n.deleted.Load() {
			count++
		}
		return true
	})
	return
}

// Fingerprint digests the full node set. Two replicas that have seen
// the same operations agree on it, so comparing fingerprints spots
// divergence cheaply; the websocket shell also keys its render cache
// on it.
func (r *Replica) Fingerprint() uint64 {
	h := xxhash.New()
	for _, n := range r.AllNodes() {
		_, _ = h.Write(n.ID.Bytes())
		_, _ = h.Write(n.Origin.Bytes())
		var meta [8]byte
		copy(meta[:4], []byte{byte(n.Char), byte(n.Char >> 8), byte(n.Char >> 16), byte(n.Char >> 24)})
		if n.Deleted {
			meta[4] = 1
		}
		_, _ = h.Write(meta[:])
	}
	return h.Sum64()
}

// Close retires all subscribers. The in-memory state stays readable.
func (r *Replica) Close() error {
	r.outq.Range(func(name string, q *protocol.RecordQueue) bool {
		r.outq.Delete(name)
		_ = q.Close()
		return true
	})
	return nil
}
