// Package types holds the data model shared by the P1 and P2 propagation
// engines: opaque identifiers, the set/map containers built on top of them,
// and the small Logger interface the engines are parameterized over.
package types

import "fmt"

// OperationId identifies an Operation. The engine never inspects an
// Operation's content, only its identifier.
type OperationId uint64

// NodeId identifies a peer.
type NodeId uint64

// Operation is an opaque payload propagated across the network.
type Operation []byte

func (o Operation) String() string {
	return fmt.Sprintf("operation(%d bytes)", len(o))
}

// OperationIds is an unordered set of OperationId, used for batches and
// wishlists.
type OperationIds map[OperationId]struct{}

// NewOperationIds builds a set from the given ids.
func NewOperationIds(ids ...OperationId) OperationIds {
	set := make(OperationIds, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts id into the set and reports whether it was newly inserted.
func (s OperationIds) Add(id OperationId) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Contains reports whether id is a member of the set.
func (s OperationIds) Contains(id OperationId) bool {
	_, ok := s[id]
	return ok
}

// Remove deletes id from the set.
func (s OperationIds) Remove(id OperationId) {
	delete(s, id)
}

// Clone returns a shallow copy, used whenever a snapshot must be emitted
// without aliasing engine-owned state.
func (s OperationIds) Clone() OperationIds {
	out := make(OperationIds, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Slice returns the set's members with an unspecified iteration order, per
// the tie-break note in the fan-out helper.
func (s OperationIds) Slice() []OperationId {
	out := make([]OperationId, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// OperationMap maps an OperationId to its Operation payload, keys unique.
type OperationMap map[OperationId]Operation

// Keys returns the map's keys as a set.
func (m OperationMap) Keys() OperationIds {
	out := make(OperationIds, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

// AskedOperations maps an OperationId to an optional Operation: present
// means the responder had it, absent (nil) means it did not. Used only by
// P2, which must distinguish "no" from "not yet answered" on the wire.
type AskedOperations map[OperationId]*Operation

// Present reports the ids in the map whose payload was actually delivered.
func (a AskedOperations) Present() OperationMap {
	out := make(OperationMap)
	for id, op := range a {
		if op != nil {
			out[id] = *op
		}
	}
	return out
}
