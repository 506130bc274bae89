package core

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// Pruner bounds a set of operation ids to a maximum size by evicting the
// least recently touched entry. It is the bounding strategy applied to
// `received` and per-peer `known_op`, which would otherwise grow
// unbounded forever. Backed by golang-lru's simplelru, the same
// bounded-eviction cache used for peer/hash bookkeeping elsewhere in the
// ecosystem.
//
// Eviction only ever forgets an id, never asserts one is known that
// isn't: a PeerState whose KnownOp entry was evicted behaves exactly like
// a peer that was never told about that op, preserving monotonicity of
// belief under pruning.
type Pruner struct {
	max     int
	cache   *lru.Cache
	evicted bool
	lastID  types.OperationId
}

// NewPruner returns a Pruner with the given capacity. A non-positive max
// disables pruning: Touch and Forget become no-ops, leaving growth
// unbounded by default.
func NewPruner(max int) *Pruner {
	p := &Pruner{max: max}
	if max <= 0 {
		return p
	}
	cache, err := lru.NewWithEvict(max, p.onEvict)
	if err != nil {
		// Only returned for a non-positive size, already excluded above.
		panic(err)
	}
	p.cache = cache
	return p
}

func (p *Pruner) onEvict(key, _ interface{}) {
	p.evicted = true
	p.lastID = key.(types.OperationId)
}

// Touch records that id was just referenced, moving it to the front of
// the eviction order. If this pushes the tracked set over capacity it
// evicts and returns the id that fell out the back; otherwise it returns
// (0, false).
func (p *Pruner) Touch(id types.OperationId) (types.OperationId, bool) {
	if p.max <= 0 {
		return 0, false
	}
	p.evicted = false
	p.cache.Add(id, struct{}{})
	if p.evicted {
		return p.lastID, true
	}
	return 0, false
}

// Forget removes id from tracking without counting it as an eviction,
// used when an op is removed through normal protocol action (e.g. a P2
// delivery) rather than falling off the LRU.
func (p *Pruner) Forget(id types.OperationId) {
	if p.max <= 0 {
		return
	}
	p.cache.Remove(id)
}

// Len reports how many ids are currently tracked.
func (p *Pruner) Len() int {
	if p.max <= 0 {
		return 0
	}
	return p.cache.Len()
}
