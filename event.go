package gencache

import "time"

// RemovalReason says which path took an entry out of the cache.
type RemovalReason uint8

const (
	// Removed: explicit Remove; ownership of the payload moved to the caller.
	Removed RemovalReason = iota + 1
	// Deleted: explicit Delete; the payload was disposed.
	Deleted
	// Expired: the sweeper found the expiration policy elapsed.
	Expired
	// Evicted: a capacity pass picked the entry as one of the oldest.
	Evicted
	// Replaced: a Set stored a new entry under the same key.
	Replaced
	// Cleared: the whole namespace was dropped.
	Cleared
)

func (r RemovalReason) String() string {
	switch r {
	case Removed:
		return "removed"
	case Deleted:
		return "deleted"
	case Expired:
		return "expired"
	case Evicted:
		return "evicted"
	case Replaced:
		return "replaced"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// ParseRemovalReason is the inverse of String. Unknown names yield 0, false.
func ParseRemovalReason(s string) (RemovalReason, bool) {
	for r := Removed; r <= Cleared; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// RemovalHandler is notified of every removal in every namespace, on the
// goroutine that performed it. It must be safe for concurrent use and must
// not call back into the store.
type RemovalHandler func(e *Entry, reason RemovalReason)

// RemovalEvent is the payload-free description of a removal, suitable for
// shipping to other processes.
type RemovalEvent struct {
	Namespace  string        `json:"ns" cbor:"1,keyasint" msgpack:"ns"`
	Key        string        `json:"key" cbor:"2,keyasint" msgpack:"key"`
	Reason     RemovalReason `json:"reason" cbor:"3,keyasint" msgpack:"reason"`
	Generation uint64        `json:"gen" cbor:"4,keyasint" msgpack:"gen"`
	At         time.Time     `json:"at" cbor:"5,keyasint" msgpack:"at"`
}

// NewRemovalEvent snapshots e's metadata.
func NewRemovalEvent(e *Entry, reason RemovalReason, at time.Time) RemovalEvent {
	return RemovalEvent{
		Namespace:  e.Namespace(),
		Key:        e.Key(),
		Reason:     reason,
		Generation: e.Generation(),
		At:         at,
	}
}
