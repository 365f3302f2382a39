package rga

import (
	"sync/atomic"

	"github.com/melatron/crdt-rga/lamport"
)

// ID identifies one inserted element, globally and forever.
type ID = lamport.Time

// StartID anchors the left edge of every document; EndID the right.
// Both compare strictly outside the range of mintable ids and are
// never minted again (src 0 is a reserved replica id).
var (
	StartID = lamport.T0
	EndID   = lamport.TMax
)

// Node is the replication unit: everything a peer needs to place one
// element. All fields except Deleted are pinned at insertion; Deleted
// only ever goes false to true.
type Node struct {
	ID       ID
	Origin   ID
	Char     rune
	Deleted  bool
	Sentinel bool
}

// Visible reports whether the node contributes a character to the
// document.
func (n Node) Visible() bool {
	return !n.Deleted && !n.Sentinel
}

// node is the stored form; the tombstone flag is atomic so concurrent
// deletes and readers need no lock.
type node struct {
	id       ID
	origin   ID
	ch       rune
	sentinel bool
	deleted  atomic.Bool
}

func newNode(n Node) *node {
	stored := &node{
		id:       n.ID,
		origin:   n.Origin,
		ch:       n.Char,
		sentinel: n.Sentinel,
	}
	if n.Deleted {
		stored.deleted.Store(true)
	}
	return stored
}

func (n *node) visible() bool {
	return !n.sentinel && !n.deleted.Load()
}

func (n *node) snapshot() Node {
	return Node{
		ID:       n.id,
		Origin:   n.origin,
		Char:     n.ch,
		Deleted:  n.deleted.Load(),
		Sentinel: n.sentinel,
	}
}
