// Package store persists a replica's node log in pebble. Records are
// keyed by node id and merged with CRDT semantics inside the LSM: a
// tombstone ORs into whatever copies of the node compaction meets, so
// the log can absorb duplicated and reordered appends the same way the
// replica does.
package store

import (
	"context"
	"io"
	"slices"

	"github.com/cockroachdb/pebble"

	rga "github.com/melatron/crdt-rga"
	"github.com/melatron/crdt-rga/lamport"
	"github.com/melatron/crdt-rga/protocol"
	"github.com/melatron/crdt-rga/utils"
)

type Log struct {
	db  *pebble.DB
	log utils.Logger
}

var writeOptions = pebble.WriteOptions{Sync: false}

func Open(dir string, logger utils.Logger) (*Log, error) {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	db, err := pebble.Open(dir, &pebble.Options{
		Merger: &pebble.Merger{
			Name:  "rga-node",
			Merge: merger,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Log{db: db, log: logger}, nil
}

func nodeKey(id lamport.Time) []byte {
	key := make([]byte, 0, 1+lamport.BytesLen)
	key = append(key, 'N')
	return append(key, id.Bytes()...)
}

// Append merges records into the log. Unparseable records are logged
// and dropped, mirroring the replica's drain behavior.
func (l *Log) Append(recs protocol.Records) error {
	for _, rec := range recs {
		n, err := rga.ParseNodeRecord(rec)
		if err != nil {
			l.log.Warn("store: skipping bad record", "err", err)
			continue
		}
		if err := l.db.Merge(nodeKey(n.ID), rec, &writeOptions); err != nil {
			return err
		}
	}
	return nil
}

// Drain lets the log hang off a replica hose.
func (l *Log) Drain(_ context.Context, recs protocol.Records) error {
	return l.Append(recs)
}

// LoadInto replays the log into a replica.
func (l *Log) LoadInto(r *rga.Replica) error {
	it, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{'N'},
		UpperBound: []byte{'O'},
	})
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		n, perr := rga.ParseNodeRecord(it.Value())
		if perr != nil {
			l.log.Warn("store: skipping bad stored record", "err", perr)
			continue
		}
		r.ApplyRemote(n)
	}
	return it.Close()
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Persist subscribes the log to a replica and pumps every new record
// to disk until the context ends.
func Persist(ctx context.Context, r *rga.Replica, l *Log) {
	hose := r.AddHose("store")
	go func() {
		defer r.RemoveHose("store")
		_ = protocol.Pump(ctx, hose, l)
	}()
}

// mergeAdaptor folds all the record versions pebble hands it into one.
type mergeAdaptor struct {
	old  bool
	vals [][]byte
}

func (a *mergeAdaptor) MergeNewer(value []byte) error {
	a.vals = append(a.vals, slices.Clone(value))
	return nil
}

func (a *mergeAdaptor) MergeOlder(value []byte) error {
	a.vals = append(a.vals, slices.Clone(value))
	a.old = true
	return nil
}

func (a *mergeAdaptor) Finish(includesBase bool) ([]byte, io.Closer, error) {
	if a.old {
		slices.Reverse(a.vals)
	}
	var merged rga.Node
	seen := false
	for _, val := range a.vals {
		n, err := rga.ParseNodeRecord(val)
		if err != nil {
			continue
		}
		if !seen {
			merged, seen = n, true
		}
		// the id pins everything but the tombstone
		merged.Deleted = merged.Deleted || n.Deleted
	}
	if !seen {
		return nil, nil, nil
	}
	return rga.NodeRecord(merged), nil, nil
}

func merger(_, value []byte) (pebble.ValueMerger, error) {
	return &mergeAdaptor{vals: [][]byte{slices.Clone(value)}}, nil
}
