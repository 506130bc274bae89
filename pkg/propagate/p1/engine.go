// Package p1 implements the pull-lean protocol variant (P1): it defers
// requests into a timed re-ask window and deduplicates asks per peer. It
// is one of the two disjoint state machines the core package's registry,
// clock, effect sink and logger are shared by; see package p2 for the
// push-lean counterpart.
package p1

import (
	"sync"
	"time"

	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/definition"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// askRecord is the value side of the wanted_asked table: when we last
// asked anyone for an op (askedAt), the absolute instant its cooling
// window expires (readyAt = askedAt + period), and which peers we've
// asked since askedAt.
type askRecord struct {
	askedAt    core.Instant
	readyAt    core.Instant
	peersAsked map[types.NodeId]struct{}
}

// bufferRecord is a deferred re-ask entry: the op_batch_buffer holds
// these, ordered by readyAt, for OnSendLoop to replay.
type bufferRecord struct {
	readyAt core.Instant
	peer    types.NodeId
	ids     types.OperationIds
}

// Config configures an Engine. PeerCount, MaxBatchSize, OpBatchProcPeriod
// and OpBatchBufCapacity are the protocol-level parameters; everything
// else is ambient wiring that defaults to unbounded, production-ready
// behavior when left zero.
type Config struct {
	PeerCount          int
	MaxBatchSize       int
	OpBatchProcPeriod  time.Duration
	OpBatchBufCapacity int

	// AskedLifetime bounds how long a wanted_asked entry survives before
	// OnPruneAskedLifetimeLoop evicts it. Defaults to 10x
	// OpBatchProcPeriod.
	AskedLifetime time.Duration

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
	if c.AskedLifetime <= 0 {
		c.AskedLifetime = c.OpBatchProcPeriod * 10
	}
}

// Engine is the pull-lean protocol state machine. Every event and timer
// method serializes on the engine's own lock, the single serialization
// point all event handling goes through; OnSendLoop takes it once per
// drained record rather than for the whole drain.
type Engine struct {
	mutex sync.Mutex

	registry *core.Registry
	clock    core.Clock
	sink     core.EffectSink
	logger   types.Logger
	invoker  core.Invoker

	maxBatchSize       int
	opBatchProcPeriod  time.Duration
	opBatchBufCapacity int
	askedLifetime      time.Duration

	wantedAsked map[types.OperationId]*askRecord
	buffer      []bufferRecord
}

// New builds an Engine from a full Config.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		registry:           core.NewBoundedRegistry(cfg.PeerCount, cfg.MaxReceived, cfg.MaxKnownPerPeer),
		clock:              cfg.Clock,
		sink:               cfg.Sink,
		logger:             cfg.Logger,
		invoker:            cfg.Invoker,
		maxBatchSize:       cfg.MaxBatchSize,
		opBatchProcPeriod:  cfg.OpBatchProcPeriod,
		opBatchBufCapacity: cfg.OpBatchBufCapacity,
		askedLifetime:      cfg.AskedLifetime,
		wantedAsked:        make(map[types.OperationId]*askRecord),
	}
}

// NewSimple builds an Engine from just the four protocol-level
// parameters: peer count, max batch size, the op-batch processing period
// in milliseconds, and the deferred-buffer capacity. Every ambient
// default applies (in-memory sink, default logger, system clock, no
// pruning).
func NewSimple(peerCount, maxBatchSize int, opBatchProcPeriodMs int64, opBatchBufCapacity int) *Engine {
	return New(Config{
		PeerCount:          peerCount,
		MaxBatchSize:       maxBatchSize,
		OpBatchProcPeriod:  time.Duration(opBatchProcPeriodMs) * time.Millisecond,
		OpBatchBufCapacity: opBatchBufCapacity,
	})
}

// Sink exposes the engine's effect sink so a caller can drain it.
func (e *Engine) Sink() core.EffectSink {
	return e.sink
}

// OnBatchReceived handles an incoming announcement batch. For every op in
// batch not already received: if we already asked from_peer for it, it
// is skipped; if the cooling window for a prior ask hasn't expired, the
// op is deferred into the buffer (one record per call, only when some op
// was deferred); otherwise it's asked for now. Returns the set of ids
// actually asked in this call.
func (e *Engine) OnBatchReceived(batch types.OperationIds, fromPeer types.NodeId) types.OperationIds {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.onBatchReceivedLocked(batch, fromPeer)
}

func (e *Engine) onBatchReceivedLocked(batch types.OperationIds, fromPeer types.NodeId) types.OperationIds {
	now := e.clock.Now()
	askSet := make(types.OperationIds, len(batch))
	futureSet := make(types.OperationIds)

	for id := range batch {
		if e.registry.IsReceived(id) {
			continue
		}
		rec, exists := e.wantedAsked[id]
		if exists {
			if _, asked := rec.peersAsked[fromPeer]; asked {
				continue
			}
			if rec.readyAt.After(now) {
				futureSet.Add(id)
				continue
			}
		}
		askSet.Add(id)
		e.wantedAsked[id] = &askRecord{
			askedAt:    now,
			readyAt:    now.Add(e.opBatchProcPeriod),
			peersAsked: map[types.NodeId]struct{}{fromPeer: {}},
		}
	}

	if len(futureSet) > 0 {
		if len(e.buffer) < e.opBatchBufCapacity {
			e.buffer = append(e.buffer, bufferRecord{
				readyAt: now.Add(e.opBatchProcPeriod),
				peer:    fromPeer,
				ids:     futureSet,
			})
		} else {
			e.logger.Warnf("p1: op_batch_buffer full at capacity %d, dropping deferred record for peer %d", e.opBatchBufCapacity, fromPeer)
		}
	}

	if len(askSet) > 0 {
		e.sink.Emit(core.Effect{Kind: core.AskOperations, Peer: fromPeer, Ids: askSet})
	}
	return askSet
}

// OnOperationReceived handles a delivery of operation payloads: merges
// ops into received, marks from_peer as knowing them, and fans the new
// knowledge out to every peer that didn't know it yet.
func (e *Engine) OnOperationReceived(fromPeer types.NodeId, ops types.OperationMap) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.registry.Merge(ops)
	ids := ops.Keys()
	e.registry.MarkKnownMany(fromPeer, ids)

	for peer, toSend := range e.registry.FanOut(ids) {
		e.sink.Emit(core.Effect{Kind: core.SendBatch, Peer: peer, Ids: toSend})
	}
}

// OnAskReceived handles a peer explicitly asking us for op_ids: this
// proves it doesn't have them, so we remove them from its known_op; we
// answer with whatever we have, omitting the rest (no "None" marker in
// P1, unlike P2).
func (e *Engine) OnAskReceived(fromPeer types.NodeId, opIds types.OperationIds) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for id := range opIds {
		e.registry.ForgetKnown(fromPeer, id)
	}

	response := make(types.OperationMap)
	for id := range opIds {
		if op, ok := e.registry.Get(id); ok {
			response[id] = op
		}
	}
	e.sink.Emit(core.Effect{Kind: core.SendOperations, Peer: fromPeer, Ops: response})
}

// OnSendLoop drains every buffered record whose cooling window has
// expired, replaying it through OnBatchReceived. Scheduling this on a
// cadence is the caller's responsibility; timers are driven externally.
func (e *Engine) OnSendLoop() {
	for {
		rec, ok := e.popDueRecord()
		if !ok {
			return
		}
		e.OnBatchReceived(rec.ids, rec.peer)
	}
}

func (e *Engine) popDueRecord() (bufferRecord, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(e.buffer) == 0 {
		return bufferRecord{}, false
	}
	front := e.buffer[0]
	if front.readyAt.After(e.clock.Now()) {
		return bufferRecord{}, false
	}
	e.buffer = e.buffer[1:]
	return front, true
}

// OnPruneAskedLifetimeLoop evicts each wanted_asked entry once it's older
// than AskedLifetime, rather than clearing the whole table at once. See
// ClearAll for the cruder wholesale-clear alternative, kept alongside for
// callers that want it.
func (e *Engine) OnPruneAskedLifetimeLoop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	now := e.clock.Now()
	for id, rec := range e.wantedAsked {
		expiry := rec.askedAt.Add(e.askedLifetime)
		if !now.Before(expiry) {
			delete(e.wantedAsked, id)
		}
	}
}

// ClearAll clears wanted_asked wholesale. Cruder than
// OnPruneAskedLifetimeLoop's per-entry TTL sweep but kept for callers
// that just want a hard reset of the asked-dedup table.
func (e *Engine) ClearAll() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.wantedAsked = make(map[types.OperationId]*askRecord)
}

// BufferLen reports how many deferred records are currently buffered,
// useful for asserting the buffer never exceeds its configured capacity.
func (e *Engine) BufferLen() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.buffer)
}
