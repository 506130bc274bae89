package p2

import (
	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// VersionedEngine wraps an Engine with a construction-time
// core.VersionGate, mirroring package p1's wrapper. Timers (OnAskingLoop,
// OnSendOperationLoop, OnRetryAskedLoop) never go through version checks
// — only peer-originated entry points do.
type VersionedEngine struct {
	*Engine
	gate *core.VersionGate
}

// NewVersioned builds a VersionedEngine, parsing localVersion and
// constraint into a core.VersionGate. Returns types.ErrInvalidVersion if
// either fails to parse.
func NewVersioned(cfg Config, localVersion, constraint string) (*VersionedEngine, error) {
	gate, err := core.NewVersionGate(localVersion, constraint)
	if err != nil {
		return nil, err
	}
	return &VersionedEngine{Engine: New(cfg), gate: gate}, nil
}

// OnBatchReceivedFrom checks peerVersion against the gate before
// delegating to Engine.OnBatchReceived.
func (v *VersionedEngine) OnBatchReceivedFrom(peerVersion string, batch types.OperationIds, fromPeer types.NodeId) error {
	if err := v.gate.Supports(peerVersion); err != nil {
		return err
	}
	v.Engine.OnBatchReceived(batch, fromPeer)
	return nil
}

// OnOperationReceivedFrom checks peerVersion against the gate before
// delegating to Engine.OnOperationReceived.
func (v *VersionedEngine) OnOperationReceivedFrom(peerVersion string, fromPeer types.NodeId, asked types.AskedOperations) error {
	if err := v.gate.Supports(peerVersion); err != nil {
		return err
	}
	v.Engine.OnOperationReceived(fromPeer, asked)
	return nil
}

// OnAskReceivedFrom checks peerVersion against the gate before delegating
// to Engine.OnAskReceived.
func (v *VersionedEngine) OnAskReceivedFrom(peerVersion string, fromPeer types.NodeId, opIds types.OperationIds) error {
	if err := v.gate.Supports(peerVersion); err != nil {
		return err
	}
	v.Engine.OnAskReceived(fromPeer, opIds)
	return nil
}
