package core

import (
	"testing"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

func TestPrunerEvictsLeastRecentlyTouched(t *testing.T) {
	p := NewPruner(2)

	if _, did := p.Touch(1); did {
		t.Fatalf("first touch should never evict")
	}
	if _, did := p.Touch(2); did {
		t.Fatalf("second touch should not evict, still at capacity")
	}
	evicted, did := p.Touch(3)
	if !did || evicted != 1 {
		t.Fatalf("expected id 1 to be evicted, got %v (did=%v)", evicted, did)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 tracked ids after eviction, got %d", p.Len())
	}
}

func TestPrunerTouchRefreshesOrder(t *testing.T) {
	p := NewPruner(2)
	p.Touch(1)
	p.Touch(2)
	// Re-touching 1 should make 2 the eviction candidate, not 1.
	p.Touch(1)
	evicted, did := p.Touch(3)
	if !did || evicted != types.OperationId(2) {
		t.Fatalf("expected id 2 to be evicted after refreshing 1, got %v (did=%v)", evicted, did)
	}
}

func TestPrunerForgetDoesNotCountAsEviction(t *testing.T) {
	p := NewPruner(2)
	p.Touch(1)
	p.Touch(2)
	p.Forget(1)
	if p.Len() != 1 {
		t.Fatalf("expected 1 tracked id after forgetting, got %d", p.Len())
	}
	if _, did := p.Touch(3); did {
		t.Fatalf("touch after forget should have spare capacity, should not evict")
	}
}

func TestPrunerZeroCapacityDisablesPruning(t *testing.T) {
	p := NewPruner(0)
	for i := types.OperationId(0); i < 100; i++ {
		if _, did := p.Touch(i); did {
			t.Fatalf("a non-positive max must never evict")
		}
	}
}
