package core

import (
	"sync"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// EffectKind distinguishes the three outbound effect shapes an engine can
// emit.
type EffectKind int

const (
	// SendBatch announces a set of operation ids a peer does not yet
	// know about.
	SendBatch EffectKind = iota
	// AskOperations requests the payloads for a set of operation ids.
	AskOperations
	// SendOperations answers a prior ask. Its Ops field is
	// populated for P1 (payload-only map); its Asked field is
	// populated for P2 (explicit-optional map) — never both.
	SendOperations
)

func (k EffectKind) String() string {
	switch k {
	case SendBatch:
		return "send_batch"
	case AskOperations:
		return "ask_operations"
	case SendOperations:
		return "send_operations"
	default:
		return "unknown"
	}
}

// Effect is the abstract outbound record both engines produce. The engine
// never performs I/O itself — it only ever appends to an EffectSink,
// leaving transport and serialization to a caller.
type Effect struct {
	Kind  EffectKind
	Peer  types.NodeId
	Ids   types.OperationIds    // SendBatch, AskOperations
	Ops   types.OperationMap    // SendOperations (P1 variant: present-only)
	Asked types.AskedOperations // SendOperations (P2 variant: explicit-optional)
}

// EffectSink accepts effects emitted by an engine. Implementations must
// accept concurrent emits from multiple engine instances but make no
// ordering promise across them.
type EffectSink interface {
	Emit(Effect)
}

// ChannelEffectSink is the default in-memory EffectSink: every emitted
// effect is pushed onto a buffered channel for a consumer (a test, or the
// CLI demo) to drain.
type ChannelEffectSink struct {
	out chan Effect
}

// NewChannelEffectSink returns a sink whose channel has the given buffer
// capacity.
func NewChannelEffectSink(capacity int) *ChannelEffectSink {
	return &ChannelEffectSink{out: make(chan Effect, capacity)}
}

// Emit pushes the effect onto the channel, blocking if it is full.
func (s *ChannelEffectSink) Emit(e Effect) {
	s.out <- e
}

// Effects returns the channel effects are published on.
func (s *ChannelEffectSink) Effects() <-chan Effect {
	return s.out
}

// Close closes the underlying channel. Callers must stop emitting before
// calling Close.
func (s *ChannelEffectSink) Close() {
	close(s.out)
}

// RecordingEffectSink is a minimal EffectSink used by tests: it just
// appends every effect to a slice under a mutex. The p1 and p2 engine
// tests record their effects through it.
type RecordingEffectSink struct {
	mu      sync.Mutex
	Effects []Effect
}

// NewRecordingEffectSink returns an empty recording sink.
func NewRecordingEffectSink() *RecordingEffectSink {
	return &RecordingEffectSink{}
}

func (s *RecordingEffectSink) Emit(e Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Effects = append(s.Effects, e)
}

// Reset clears all recorded effects.
func (s *RecordingEffectSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Effects = nil
}
