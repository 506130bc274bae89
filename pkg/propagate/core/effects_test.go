package core

import (
	"testing"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

func TestChannelEffectSinkDeliversInOrder(t *testing.T) {
	sink := NewChannelEffectSink(2)
	sink.Emit(Effect{Kind: SendBatch, Peer: 1, Ids: types.NewOperationIds(1)})
	sink.Emit(Effect{Kind: AskOperations, Peer: 2, Ids: types.NewOperationIds(2)})
	sink.Close()

	var got []Effect
	for e := range sink.Effects() {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(got))
	}
	if got[0].Kind != SendBatch || got[1].Kind != AskOperations {
		t.Fatalf("expected effects in emission order, got %v", got)
	}
}

func TestRecordingEffectSinkResets(t *testing.T) {
	sink := NewRecordingEffectSink()
	sink.Emit(Effect{Kind: SendBatch, Peer: 1})
	sink.Emit(Effect{Kind: SendOperations, Peer: 2})
	if len(sink.Effects) != 2 {
		t.Fatalf("expected 2 recorded effects, got %d", len(sink.Effects))
	}
	sink.Reset()
	if len(sink.Effects) != 0 {
		t.Fatalf("expected Reset to clear recorded effects, got %d", len(sink.Effects))
	}
}

func TestEffectKindString(t *testing.T) {
	cases := map[EffectKind]string{
		SendBatch:      "send_batch",
		AskOperations:  "ask_operations",
		SendOperations: "send_operations",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("EffectKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
