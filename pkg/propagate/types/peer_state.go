package types

// PeerState is the per-peer bookkeeping entity: what the engine believes
// this peer already knows (known_op), and, for P2 only, what this peer
// has asked us for but we haven't answered yet (wishlist). P1 never
// populates Wishlist.
//
// Lifecycle: created when a peer first becomes visible — at engine
// construction, or lazily on first reference from an event — and never
// destroyed by the core; pruning is handled separately (core.Pruner).
type PeerState struct {
	KnownOp  OperationIds
	Wishlist OperationIds
}

// NewPeerState returns an empty PeerState ready for use.
func NewPeerState() *PeerState {
	return &PeerState{
		KnownOp:  make(OperationIds),
		Wishlist: make(OperationIds),
	}
}
