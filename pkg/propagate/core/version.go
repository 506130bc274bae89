package core

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// VersionGate is a protocol compatibility check, built once when a
// versioned engine is constructed and applied on each of its
// peer-originated entry points: a peer whose advertised version fails the
// constraint is rejected before any engine state changes. Uses a semantic-version constraint rather than a
// single exact-match comparison, so a gate can accept a range of
// compatible peer versions rather than only its own exact build.
type VersionGate struct {
	local      *version.Version
	constraint version.Constraints
}

// NewVersionGate parses local (this node's own protocol version) and
// builds a gate accepting any peer whose version satisfies constraint.
// An empty constraint defaults to accepting only the same major version
// as local.
func NewVersionGate(local string, constraint string) (*VersionGate, error) {
	v, err := version.NewVersion(local)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidVersion, err)
	}
	if constraint == "" {
		constraint = fmt.Sprintf(">= %d.0.0, < %d.0.0", v.Segments()[0], v.Segments()[0]+1)
	}
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidVersion, err)
	}
	return &VersionGate{local: v, constraint: c}, nil
}

// Local returns this node's own protocol version string.
func (g *VersionGate) Local() string {
	return g.local.String()
}

// Supports reports whether peerVersion satisfies the gate's constraint,
// returning types.ErrUnsupportedProtocol when it does not.
func (g *VersionGate) Supports(peerVersion string) error {
	v, err := version.NewVersion(peerVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidVersion, err)
	}
	if !g.constraint.Check(v) {
		return types.ErrUnsupportedProtocol
	}
	return nil
}
