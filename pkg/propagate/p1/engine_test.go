package p1

import (
	"testing"
	"time"

	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

func newTestEngine(clock core.Clock) (*Engine, *core.RecordingEffectSink) {
	sink := core.NewRecordingEffectSink()
	e := New(Config{
		PeerCount:          2,
		MaxBatchSize:       10,
		OpBatchProcPeriod:  200 * time.Millisecond,
		OpBatchBufCapacity: 1000,
		Sink:               sink,
		Clock:              clock,
	})
	return e, sink
}

func onlyAskEffect(t *testing.T, effects []core.Effect) core.Effect {
	t.Helper()
	var asks []core.Effect
	for _, e := range effects {
		if e.Kind == core.AskOperations {
			asks = append(asks, e)
		}
	}
	if len(asks) != 1 {
		t.Fatalf("expected exactly 1 ask_operations effect, got %d: %v", len(asks), effects)
	}
	return asks[0]
}

func TestBatchReceivedAsksForEveryUnknownOp(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)

	got := e.OnBatchReceived(types.NewOperationIds(7, 8, 9), 1)
	want := types.NewOperationIds(7, 8, 9)
	for id := range want {
		if !got.Contains(id) {
			t.Fatalf("expected returned ask set to contain %d, got %v", id, got)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected exactly {7,8,9}, got %v", got)
	}

	ask := onlyAskEffect(t, sink.Effects)
	if ask.Peer != 1 || len(ask.Ids) != 3 {
		t.Fatalf("expected ask_operations(1, {7,8,9}), got %v", ask)
	}
}

func TestBatchReceivedDefersAlreadyAskedOpsInsteadOfReAsking(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)
	e.OnBatchReceived(types.NewOperationIds(7, 8, 9), 1)
	sink.Reset()

	clock.Set(clock.Now().Add(50 * time.Millisecond))
	e.OnBatchReceived(types.NewOperationIds(8, 9, 10), 0)

	ask := onlyAskEffect(t, sink.Effects)
	if ask.Peer != 0 || len(ask.Ids) != 1 || !ask.Ids.Contains(10) {
		t.Fatalf("expected ask_operations(0, {10}) only, got %v", ask)
	}
	if e.BufferLen() != 1 {
		t.Fatalf("expected exactly 1 buffered record, got %d", e.BufferLen())
	}
}

func TestSendLoopDrainsBufferedRecordOnceItsCooldownExpires(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)
	e.OnBatchReceived(types.NewOperationIds(7, 8, 9), 1)
	clock.Set(clock.Now().Add(50 * time.Millisecond))
	e.OnBatchReceived(types.NewOperationIds(8, 9, 10), 0)
	sink.Reset()

	clock.Set(core.NewManualClock(0).Now().Add(260 * time.Millisecond))
	e.OnSendLoop()

	ask := onlyAskEffect(t, sink.Effects)
	if ask.Peer != 0 || len(ask.Ids) != 2 || !ask.Ids.Contains(8) || !ask.Ids.Contains(9) {
		t.Fatalf("expected ask_operations(0, {8,9}), got %v", ask)
	}
	if e.BufferLen() != 0 {
		t.Fatalf("expected the buffer to have drained, got len %d", e.BufferLen())
	}
}

func TestAskReceivedShrinksKnownOp(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)
	e.registry.MarkKnown(3, 5)
	e.registry.MarkKnown(3, 6)

	e.OnAskReceived(3, types.NewOperationIds(5))

	if e.registry.Peer(3).KnownOp.Contains(5) {
		t.Fatalf("expected known_op[3] to no longer contain 5")
	}
	if !e.registry.Peer(3).KnownOp.Contains(6) {
		t.Fatalf("expected known_op[3] to still contain 6")
	}

	var sendOps []core.Effect
	for _, eff := range sink.Effects {
		if eff.Kind == core.SendOperations {
			sendOps = append(sendOps, eff)
		}
	}
	if len(sendOps) != 1 || sendOps[0].Peer != 3 || len(sendOps[0].Ops) != 0 {
		t.Fatalf("expected send_operations(3, {}), got %v", sendOps)
	}
}

func TestNoAskForAlreadyReceivedOp(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)
	e.OnOperationReceived(1, types.OperationMap{42: types.Operation("x")})
	sink.Reset()

	got := e.OnBatchReceived(types.NewOperationIds(42), 0)
	if len(got) != 0 {
		t.Fatalf("expected no ask for an already-received op, got %v", got)
	}
	for _, eff := range sink.Effects {
		if eff.Kind == core.AskOperations {
			t.Fatalf("did not expect any ask_operations effect, got %v", eff)
		}
	}
}

func TestFanOutExcludesPeerThatDeliveredTheOp(t *testing.T) {
	clock := core.NewManualClock(0)
	sink := core.NewRecordingEffectSink()
	e := New(Config{PeerCount: 2, MaxBatchSize: 10, OpBatchProcPeriod: time.Second, OpBatchBufCapacity: 10, Sink: sink, Clock: clock})

	e.OnOperationReceived(0, types.OperationMap{1: types.Operation("a")})

	for _, eff := range sink.Effects {
		if eff.Kind == core.SendBatch && eff.Peer == 0 {
			t.Fatalf("peer 0 delivered the op, it should not be fanned back out to itself: %v", eff)
		}
	}
}

func TestRepeatedIdenticalDeliveryEmitsNoSecondFanOut(t *testing.T) {
	clock := core.NewManualClock(0)
	e, sink := newTestEngine(clock)
	ops := types.OperationMap{1: types.Operation("a")}

	e.OnOperationReceived(0, ops)
	sink.Reset()
	e.OnOperationReceived(0, ops)

	for _, eff := range sink.Effects {
		if eff.Kind == core.SendBatch {
			t.Fatalf("second identical delivery should emit no send_batch, got %v", eff)
		}
	}
}

func TestBufferNeverExceedsConfiguredCapacity(t *testing.T) {
	clock := core.NewManualClock(0)
	sink := core.NewRecordingEffectSink()
	e := New(Config{PeerCount: 1, MaxBatchSize: 10, OpBatchProcPeriod: time.Second, OpBatchBufCapacity: 1, Sink: sink, Clock: clock})

	e.OnBatchReceived(types.NewOperationIds(1), 0)
	// Repeat announcements of op 1 from the same peer are skipped, since
	// peer 0 was already asked for it, so they defer nothing.
	e.OnBatchReceived(types.NewOperationIds(1), 0)
	e.OnBatchReceived(types.NewOperationIds(1), 0)

	if e.BufferLen() > 1 {
		t.Fatalf("expected buffer length to never exceed capacity 1, got %d", e.BufferLen())
	}
}

func TestOnPruneAskedLifetimeLoopEvictsExpiredEntries(t *testing.T) {
	clock := core.NewManualClock(0)
	e := New(Config{PeerCount: 1, MaxBatchSize: 10, OpBatchProcPeriod: time.Second, OpBatchBufCapacity: 10, AskedLifetime: time.Minute, Clock: clock})
	e.OnBatchReceived(types.NewOperationIds(1), 0)

	clock.Advance(30 * time.Second)
	e.OnPruneAskedLifetimeLoop()
	if _, exists := e.wantedAsked[1]; !exists {
		t.Fatalf("entry should not have expired yet")
	}

	clock.Advance(31 * time.Second)
	e.OnPruneAskedLifetimeLoop()
	if _, exists := e.wantedAsked[1]; exists {
		t.Fatalf("expected the wanted_asked entry to have been pruned after its lifetime elapsed")
	}
}

func TestClearAllWipesWantedAsked(t *testing.T) {
	clock := core.NewManualClock(0)
	e, _ := newTestEngine(clock)
	e.OnBatchReceived(types.NewOperationIds(1, 2), 0)
	e.ClearAll()
	if len(e.wantedAsked) != 0 {
		t.Fatalf("expected ClearAll to wipe wanted_asked entirely, got %d entries", len(e.wantedAsked))
	}
}
