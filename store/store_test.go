package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rga "github.com/melatron/crdt-rga"
	"github.com/melatron/crdt-rga/store"
)

func TestLogRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	r, _ := rga.New(1)
	anchor := r.SentinelStart()
	for _, ch := range "durable" {
		anchor, err = r.InsertAfter(anchor, ch)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delete(anchor)) // drop the trailing 'e'

	l, err := store.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, l.Append(r.SnapshotRecords()))
	require.NoError(t, l.Close())

	l, err = store.Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	fresh, _ := rga.New(2)
	require.NoError(t, l.LoadInto(fresh))
	assert.Equal(t, "durabl", fresh.String())
	assert.Equal(t, r.Fingerprint(), fresh.Fingerprint())
}

func TestLogMergesTombstones(t *testing.T) {
	dir, err := os.MkdirTemp("", "*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	r, _ := rga.New(1)
	id, _ := r.InsertAfter(r.SentinelStart(), 'x')
	live, _ := r.Node(id)

	l, err := store.Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	// live copy, tombstone, live copy again: deletion must stick
	require.NoError(t, l.Append([][]byte{rga.NodeRecord(live)}))
	require.NoError(t, r.Delete(id))
	tomb, _ := r.Node(id)
	require.NoError(t, l.Append([][]byte{rga.NodeRecord(tomb)}))
	require.NoError(t, l.Append([][]byte{rga.NodeRecord(live)}))

	fresh, _ := rga.New(2)
	require.NoError(t, l.LoadInto(fresh))
	assert.Equal(t, "", fresh.String())
	got, ok := fresh.Node(id)
	require.True(t, ok)
	assert.True(t, got.Deleted)
}

func TestPersistStreamsOps(t *testing.T) {
	dir, err := os.MkdirTemp("", "*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	l, err := store.Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	r, _ := rga.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.Persist(ctx, r, l)

	_, err = r.InsertAfter(r.SentinelStart(), 'p')
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fresh, _ := rga.New(9)
		if err := l.LoadInto(fresh); err != nil {
			return false
		}
		return fresh.String() == "p"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogIgnoresGarbage(t *testing.T) {
	dir, err := os.MkdirTemp("", "*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	l, err := store.Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append([][]byte{{0xba, 0xd0}}))

	fresh, _ := rga.New(2)
	require.NoError(t, l.LoadInto(fresh))
	assert.Equal(t, 2, fresh.NodeCount())
}
