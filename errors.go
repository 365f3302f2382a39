package rga

import "errors"

var (
	// ErrZeroReplica rejects the reserved replica id 0.
	ErrZeroReplica = errors.New("rga: replica id 0 is reserved for sentinels")
	// ErrUnknownAnchor rejects an insertion after END or after an id
	// this replica has never seen.
	ErrUnknownAnchor = errors.New("rga: unknown insertion anchor")
	// ErrUnknownNode rejects a deletion of an absent id.
	ErrUnknownNode = errors.New("rga: unknown node")
	// ErrDeleteSentinel rejects a deletion of START or END.
	ErrDeleteSentinel = errors.New("rga: sentinels cannot be deleted")

	// ErrBadNodeRecord marks an unparseable wire record.
	ErrBadNodeRecord = errors.New("rga: bad node record")
)
