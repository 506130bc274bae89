package p1

import (
	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// VersionedEngine wraps an Engine with a construction-time
// core.VersionGate. The plain Engine keeps its event signatures
// unchanged; only the *From methods here take a peer version and can
// fail with types.ErrUnsupportedProtocol. Timers never go through
// version checks.
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
func (v *VersionedEngine) OnBatchReceivedFrom(peerVersion string, batch types.OperationIds, fromPeer types.NodeId) (types.OperationIds, error) {
	if err := v.gate.Supports(peerVersion); err != nil {
		return nil, err
	}
	return v.Engine.OnBatchReceived(batch, fromPeer), nil
}

// OnOperationReceivedFrom checks peerVersion against the gate before
// delegating to Engine.OnOperationReceived.
func (v *VersionedEngine) OnOperationReceivedFrom(peerVersion string, fromPeer types.NodeId, ops types.OperationMap) error {
	if err := v.gate.Supports(peerVersion); err != nil {
		return err
	}
	v.Engine.OnOperationReceived(fromPeer, ops)
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
