package rga

import (
	"github.com/melatron/crdt-rga/lamport"
	"github.com/melatron/crdt-rga/protocol"
)

// Wire form of one node, TLV all the way down:
//
//	N-record
//	├── I  node id, zipped (count, src, seq)
//	├── O  origin id, zipped
//	├── C  character, zipped code point
//	└── D  present iff tombstoned
//
// Sentinels are never shipped; every replica is born with its own.

func NodeRecord(n Node) []byte {
	body := protocol.Concat(
		protocol.Record('I', n.ID.ZipBytes()),
		protocol.Record('O', n.Origin.ZipBytes()),
		protocol.Record('C', lamport.ZipUint64(uint64(n.Char))),
	)
	if n.Deleted {
		body = append(body, protocol.Record('D')...)
	}
	return protocol.Record('N', body)
}

func ParseNodeRecord(rec []byte) (Node, error) {
	body, _ := protocol.Take('N', rec)
	if body == nil {
		return Node{}, ErrBadNodeRecord
	}
	ibody, rest := protocol.Take('I', body)
	if ibody == nil {
		return Node{}, ErrBadNodeRecord
	}
	obody, rest := protocol.Take('O', rest)
	if obody == nil {
		return Node{}, ErrBadNodeRecord
	}
	cbody, rest := protocol.Take('C', rest)
	if cbody == nil {
		return Node{}, ErrBadNodeRecord
	}
	n := Node{
		ID:     lamport.TimeFromZipBytes(ibody),
		Origin: lamport.TimeFromZipBytes(obody),
		Char:   rune(lamport.UnzipUint64(cbody)),
	}
	if len(rest) > 0 {
		if dbody, _ := protocol.Take('D', rest); dbody != nil {
			n.Deleted = true
		}
	}
	return n, nil
}
