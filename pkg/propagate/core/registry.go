package core

import (
	"sync"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// Registry is the peer registry and received store shared by both engine
// variants. It owns the per-peer PeerState table and the authoritative map
// of operations this node has obtained, and is safe for concurrent use —
// though in practice a single engine instance only ever touches it from
// its own serialization point.
type Registry struct {
	mutex sync.Mutex

	peers    map[types.NodeId]*types.PeerState
	received types.OperationMap

	// maxKnownPerPeer bounds each peer's KnownOp set via an LRU; zero
	// disables pruning, leaving growth unbounded by default.
	maxKnownPerPeer int
	knownPruner     map[types.NodeId]*Pruner
	receivedPruner  *Pruner
}

// NewRegistry builds a registry with peerCount pre-registered peers, ids
// 0..peerCount-1, matching both engines' constructor contracts. Pruning is
// disabled (maxReceived == 0 && maxKnownPerPeer == 0) by default; use
// NewBoundedRegistry to opt in.
func NewRegistry(peerCount int) *Registry {
	return NewBoundedRegistry(peerCount, 0, 0)
}

// NewBoundedRegistry is NewRegistry plus pruning limits on the received
// store and each peer's known_op set. A non-positive limit disables
// pruning for that table.
func NewBoundedRegistry(peerCount int, maxReceived int, maxKnownPerPeer int) *Registry {
	r := &Registry{
		peers:           make(map[types.NodeId]*types.PeerState, peerCount),
		received:        make(types.OperationMap),
		maxKnownPerPeer: maxKnownPerPeer,
		knownPruner:     make(map[types.NodeId]*Pruner, peerCount),
		receivedPruner:  NewPruner(maxReceived),
	}
	for i := 0; i < peerCount; i++ {
		id := types.NodeId(i)
		r.peers[id] = types.NewPeerState()
		r.knownPruner[id] = NewPruner(maxKnownPerPeer)
	}
	return r
}

// RegisterPeer creates an empty entry for id if one does not already
// exist. Unknown peers referenced by an event are auto-created this way
// (§7: UnknownPeer is not a failure).
func (r *Registry) RegisterPeer(id types.NodeId) *types.PeerState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.registerLocked(id)
}

func (r *Registry) registerLocked(id types.NodeId) *types.PeerState {
	p, ok := r.peers[id]
	if !ok {
		p = types.NewPeerState()
		r.peers[id] = p
		r.knownPruner[id] = NewPruner(r.maxKnownPerPeer)
	}
	return p
}

// touchKnown records that id was just inserted into peer's KnownOp set and
// evicts the LRU victim from both the pruner and the set itself if the
// peer's bound was exceeded. Must be called with mutex held.
func (r *Registry) touchKnown(peer types.NodeId, state *types.PeerState, id types.OperationId) {
	pruner, ok := r.knownPruner[peer]
	if !ok {
		return
	}
	if evicted, did := pruner.Touch(id); did {
		state.KnownOp.Remove(evicted)
	}
}

// Peer returns the peer's state, registering it first if unknown.
func (r *Registry) Peer(id types.NodeId) *types.PeerState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.registerLocked(id)
}

// Peers returns every registered peer id with an unspecified order, per
// the tie-break note on fan-out iteration.
func (r *Registry) Peers() []types.NodeId {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]types.NodeId, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// MarkKnown records that peer is now believed to know about id, applying
// the registry's KnownOp pruning bound. Reports whether id was newly
// added to the peer's KnownOp set (false if the peer already knew it).
func (r *Registry) MarkKnown(peer types.NodeId, id types.OperationId) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	state := r.registerLocked(peer)
	if !state.KnownOp.Add(id) {
		return false
	}
	r.touchKnown(peer, state, id)
	return true
}

// MarkKnownMany applies MarkKnown for every id in ids, returning the
// subset that was newly added.
func (r *Registry) MarkKnownMany(peer types.NodeId, ids types.OperationIds) types.OperationIds {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	state := r.registerLocked(peer)
	added := make(types.OperationIds, len(ids))
	for id := range ids {
		if state.KnownOp.Add(id) {
			r.touchKnown(peer, state, id)
			added[id] = struct{}{}
		}
	}
	return added
}

// ForgetKnown removes id from peer's KnownOp set, used by P1's
// on_ask_received to record the peer proving it does not have id.
func (r *Registry) ForgetKnown(peer types.NodeId, id types.OperationId) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	state := r.registerLocked(peer)
	state.KnownOp.Remove(id)
	if pruner, ok := r.knownPruner[peer]; ok {
		pruner.Forget(id)
	}
}

// IsReceived reports whether op is already in the received store.
func (r *Registry) IsReceived(op types.OperationId) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.received[op]
	return ok
}

// Get returns the payload for op, if received.
func (r *Registry) Get(op types.OperationId) (types.Operation, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	v, ok := r.received[op]
	return v, ok
}

// RecordReceived stores payload under op if not already present.
// Idempotent: a second call for an already-present op is a no-op and
// reports false so callers know not to propagate it again.
func (r *Registry) RecordReceived(op types.OperationId, payload types.Operation) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.received[op]; ok {
		return false
	}
	r.received[op] = payload
	r.touchReceived(op)
	return true
}

// touchReceived applies the received-store pruning bound; must be called
// with mutex held. Eviction here only drops the payload from `received`
// — it does not retract knowledge already fanned out to peers, matching
// §9's "pruning only loses state, never falsely asserts knowledge".
func (r *Registry) touchReceived(op types.OperationId) {
	if r.receivedPruner == nil {
		return
	}
	if evicted, did := r.receivedPruner.Touch(op); did {
		delete(r.received, evicted)
	}
}

// Merge stores every operation in ops that is not already received,
// returning the subset that was newly added.
func (r *Registry) Merge(ops types.OperationMap) types.OperationIds {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	added := make(types.OperationIds, len(ops))
	for id, op := range ops {
		if _, ok := r.received[id]; !ok {
			r.received[id] = op
			r.touchReceived(id)
			added[id] = struct{}{}
		}
	}
	return added
}

// FanOut is the shared announcement helper used by both engine variants:
// for every registered peer, computes the subset of ids the peer does not
// yet know about, marks it known (atomically, before the caller emits
// anything), and returns the per-peer batches to send. Iteration order
// over peers is unspecified.
func (r *Registry) FanOut(ids types.OperationIds) map[types.NodeId]types.OperationIds {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make(map[types.NodeId]types.OperationIds, len(r.peers))
	for peer, state := range r.peers {
		batch := make(types.OperationIds)
		for id := range ids {
			if !state.KnownOp.Contains(id) {
				state.KnownOp.Add(id)
				r.touchKnown(peer, state, id)
				batch[id] = struct{}{}
			}
		}
		if len(batch) > 0 {
			out[peer] = batch
		}
	}
	return out
}
