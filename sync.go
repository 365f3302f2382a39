package rga

import (
	"context"

	"github.com/melatron/crdt-rga/protocol"
)

// Syncer is one replication session between the local replica and a
// peer, pluggable into the protocol.Net depot. The contract with the
// transport is loose on purpose: records may be duplicated, reordered
// or replayed wholesale, and the replica absorbs all of it.
//
// The first Feed ships a full state snapshot; the hose is attached
// before the snapshot is cut, so anything committed in between simply
// arrives twice.
type Syncer struct {
	Host *Replica
	Name string

	feed protocol.FeedCloser
}

// Feed returns the next batch of records for the peer. Called from a
// single writer goroutine per session.
func (s *Syncer) Feed(ctx context.Context) (protocol.Records, error) {
	if s.feed == nil {
		s.feed = s.Host.AddHose(s.Name)
		return s.Host.SnapshotRecords(), nil
	}
	return s.feed.Feed(ctx)
}

// Drain folds records from the peer into the local replica. Never
// fails; the peer's name keeps its own records from echoing back.
func (s *Syncer) Drain(_ context.Context, recs protocol.Records) error {
	s.Host.DrainRecords(recs, s.Name)
	return nil
}

func (s *Syncer) Close() error {
	s.Host.RemoveHose(s.Name)
	return nil
}
