// Package p2 implements the push-lean protocol variant (P2): it
// accumulates a global wishlist and periodically drains it into per-peer
// batches. It is the sibling of package p1's pull-lean state machine; the
// two share the registry/clock/effect-sink/logger primitives in package
// core but implement disjoint state.
package p2

import (
	"sort"
	"sync"
	"time"

	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/definition"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// Config configures an Engine. PeerCount and MaxBatchSize are the
// protocol-level parameters; everything else is ambient wiring that
// defaults to unbounded, production-ready behavior when left zero.
type Config struct {
	PeerCount    int
	MaxBatchSize int

	// MaxReceived/MaxKnownPerPeer bound the registry's pruner; zero
	// disables pruning for that table (the unbounded default).
	MaxReceived     int
	MaxKnownPerPeer int

	Sink    core.EffectSink
	Logger  types.Logger
	Invoker core.Invoker
	Clock   core.Clock
}

func (c *Config) setDefaults() {
	if c.Sink == nil {
		c.Sink = core.NewChannelEffectSink(256)
	}
	if c.Logger == nil {
		c.Logger = definition.NewDefaultLogger()
	}
	if c.Invoker == nil {
		c.Invoker = core.GoInvoker{}
	}
	if c.Clock == nil {
		c.Clock = core.NewSystemClock()
	}
}

// Engine is the push-lean protocol state machine.
type Engine struct {
	mutex sync.Mutex

	registry *core.Registry
	clock    core.Clock
	sink     core.EffectSink
	logger   types.Logger
	invoker  core.Invoker

	maxBatchSize int

	wishlist types.OperationIds
	wanted   map[types.NodeId]types.OperationIds
	// alreadyAsked tracks, per op, the instant it was last planned into
	// `wanted`. The timestamp backs OnRetryAskedLoop, which releases a
	// stale entry back onto the wishlist if it never got answered.
	alreadyAsked map[types.OperationId]core.Instant
}

// New builds an Engine from a full Config.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		registry:     core.NewBoundedRegistry(cfg.PeerCount, cfg.MaxReceived, cfg.MaxKnownPerPeer),
		clock:        cfg.Clock,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		invoker:      cfg.Invoker,
		maxBatchSize: cfg.MaxBatchSize,
		wishlist:     make(types.OperationIds),
		wanted:       make(map[types.NodeId]types.OperationIds),
		alreadyAsked: make(map[types.OperationId]core.Instant),
	}
}

// NewSimple builds an Engine from just the peer count and max batch
// size; every ambient default applies (in-memory sink, default logger,
// system clock, no pruning).
func NewSimple(peerCount, maxBatchSize int) *Engine {
	return New(Config{PeerCount: peerCount, MaxBatchSize: maxBatchSize})
}

// Sink exposes the engine's effect sink so a caller can drain it.
func (e *Engine) Sink() core.EffectSink {
	return e.sink
}

// OnBatchReceived handles an incoming announcement batch: for every op
// in batch not already received, marks from_peer as knowing it and adds
// it to the global wishlist. No asks are emitted here — asking is
// entirely timer-driven (OnAskingLoop).
func (e *Engine) OnBatchReceived(batch types.OperationIds, fromPeer types.NodeId) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for id := range batch {
		if e.registry.IsReceived(id) {
			continue
		}
		e.registry.MarkKnown(fromPeer, id)
		e.wishlist.Add(id)
	}
}

// OnAskingLoop is the planner timer: for each wishlisted op not yet
// asked for and not yet received, finds the first peer (by ascending
// NodeId, for a deterministic pass) that knows it and has spare capacity
// in wanted[peer], and plans an ask there. A peer with no existing
// wanted[·] entry is treated as having an empty wanted set (full
// capacity), not as an unconditional bypass, so |wanted[peer]| never exceeds MaxBatchSize —
// if every candidate is saturated the op is simply left for the next
// pass rather than growing wanted[·] unboundedly. Finally, the entire
// current `wanted` table — not just this pass's deltas — is emitted as
// ask_operations per peer, a full resync rather than a delta.
func (e *Engine) OnAskingLoop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	now := e.clock.Now()
	peers := e.registry.Peers()
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	ops := e.wishlist.Slice()
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	for _, op := range ops {
		if _, asked := e.alreadyAsked[op]; asked {
			continue
		}
		if e.registry.IsReceived(op) {
			continue
		}
		for _, peer := range peers {
			state := e.registry.Peer(peer)
			if !state.KnownOp.Contains(op) {
				continue
			}
			if len(e.wanted[peer]) >= e.maxBatchSize {
				continue
			}
			if e.wanted[peer] == nil {
				e.wanted[peer] = make(types.OperationIds)
			}
			e.wanted[peer].Add(op)
			e.alreadyAsked[op] = now
			break
		}
	}

	for peer, ids := range e.wanted {
		e.sink.Emit(core.Effect{Kind: core.AskOperations, Peer: peer, Ids: ids.Clone()})
	}
}

// OnOperationReceived handles a delivery of asked-for operations: any op
// delivered with a present payload is stored, cleared from the wishlist
// and from every peer's wanted set, and freed from already_asked so it
// could be re-wanted in the future if re-introduced. The delivering
// peer's known_op is updated and the new knowledge is fanned out to
// every peer that didn't have it yet.
func (e *Engine) OnOperationReceived(fromPeer types.NodeId, asked types.AskedOperations) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	delivered := make(types.OperationIds, len(asked))
	for id, payload := range asked.Present() {
		e.registry.RecordReceived(id, payload)
		e.wishlist.Remove(id)
		delete(e.alreadyAsked, id)
		for _, wantedSet := range e.wanted {
			wantedSet.Remove(id)
		}
		delivered.Add(id)
	}

	e.registry.MarkKnownMany(fromPeer, delivered)
	for peer, toSend := range e.registry.FanOut(delivered) {
		e.sink.Emit(core.Effect{Kind: core.SendBatch, Peer: peer, Ids: toSend})
	}
}

// OnAskReceived handles a peer explicitly asking us for op_ids: they are
// appended to from_peer's outstanding-request wishlist, to be drained by
// OnSendOperationLoop.
func (e *Engine) OnAskReceived(fromPeer types.NodeId, opIds types.OperationIds) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	state := e.registry.Peer(fromPeer)
	for id := range opIds {
		state.Wishlist.Add(id)
	}
}

// OnSendOperationLoop is the answering timer: for every peer, drains up
// to MaxBatchSize ops from that peer's outstanding wishlist and answers
// with an explicit-optional map — Some(payload) if we have it, None
// (nil) if we don't — so the peer can tell "no" apart from "not answered
// yet".
func (e *Engine) OnSendOperationLoop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for _, peer := range e.registry.Peers() {
		state := e.registry.Peer(peer)
		if len(state.Wishlist) == 0 {
			continue
		}
		ids := state.Wishlist.Slice()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if len(ids) > e.maxBatchSize {
			ids = ids[:e.maxBatchSize]
		}

		response := make(types.AskedOperations, len(ids))
		for _, id := range ids {
			state.Wishlist.Remove(id)
			if op, ok := e.registry.Get(id); ok {
				payload := op
				response[id] = &payload
			} else {
				response[id] = nil
			}
		}
		e.sink.Emit(core.Effect{Kind: core.SendOperations, Peer: peer, Asked: response})
	}
}

// OnRetryAskedLoop releases a stale ask: an op planned into
// already_asked more than retryAfter ago and still undelivered is put
// back onto the wishlist (and scrubbed from every wanted[·]) so the next
// OnAskingLoop can re-plan it. Calling this is optional — skipping it
// leaves an unanswered ask stuck in already_asked forever, which is a
// legitimate choice for a caller that trusts its peers to always
// eventually answer.
func (e *Engine) OnRetryAskedLoop(retryAfter time.Duration) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	now := e.clock.Now()
	for op, askedAt := range e.alreadyAsked {
		if e.registry.IsReceived(op) {
			delete(e.alreadyAsked, op)
			continue
		}
		if now.Before(askedAt.Add(retryAfter)) {
			continue
		}
		delete(e.alreadyAsked, op)
		e.wishlist.Add(op)
		for _, wantedSet := range e.wanted {
			wantedSet.Remove(op)
		}
	}
}

// Wishlist returns a snapshot of the global wishlist, for tests and
// observability.
func (e *Engine) Wishlist() types.OperationIds {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.wishlist.Clone()
}

// Wanted returns a snapshot of the planned per-peer asks, for tests and
// observability.
func (e *Engine) Wanted() map[types.NodeId]types.OperationIds {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := make(map[types.NodeId]types.OperationIds, len(e.wanted))
	for peer, ids := range e.wanted {
		out[peer] = ids.Clone()
	}
	return out
}
