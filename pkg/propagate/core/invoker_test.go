package core

import (
	"sync/atomic"
	"testing"
)

func TestWaitGroupInvokerWaitsForSpawnedWork(t *testing.T) {
	var invoker WaitGroupInvoker
	var done int32

	invoker.Spawn(func() {
		atomic.StoreInt32(&done, 1)
	})
	invoker.Wait()

	if atomic.LoadInt32(&done) != 1 {
		t.Fatalf("expected spawned work to have completed before Wait returned")
	}
}

func TestGoInvokerRunsSpawnedWork(t *testing.T) {
	done := make(chan struct{})
	GoInvoker{}.Spawn(func() {
		close(done)
	})
	<-done
}
