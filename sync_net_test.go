package rga

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melatron/crdt-rga/protocol"
)

// Two replicas wired through an in-memory pipe, full transport stack:
// Syncer -> TLV records -> Peer read/write loops -> Syncer.
func TestPeersConvergeOverPipe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := New(1)
	b, _ := New(2)

	// a has history before the link comes up; b edits live after
	anchor := a.SentinelStart()
	for _, ch := range "sync" {
		anchor, _ = a.InsertAfter(anchor, ch)
	}

	connA, connB := net.Pipe()
	peerA := protocol.NewPeer(connA, &Syncer{Host: a, Name: "peer:b"})
	peerB := protocol.NewPeer(connB, &Syncer{Host: b, Name: "peer:a"})

	go peerA.Keep(ctx)
	go peerB.Keep(ctx)

	require.Eventually(t, func() bool {
		return b.String() == "sync"
	}, 2*time.Second, 5*time.Millisecond)

	_, err := b.InsertAfter(b.FindByCharMust('c'), '!')
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.String() == "sync!"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	cancel()
	peerA.Close()
	peerB.Close()
}

// FindByCharMust is a test helper; it panics when the character is
// not in the document.
func (r *Replica) FindByCharMust(ch rune) ID {
	id, ok := r.FindByChar(ch)
	if !ok {
		panic("character not found")
	}
	return id
}
