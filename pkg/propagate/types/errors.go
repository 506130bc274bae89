package types

import "errors"

var (
	// ErrUnsupportedProtocol is returned when a peer's advertised
	// protocol version falls outside a VersionGate's accepted range.
	ErrUnsupportedProtocol = errors.New("propagate: protocol version not supported")

	// ErrInvalidVersion is returned when a version string handed to the
	// version gate does not parse as a semantic version.
	ErrInvalidVersion = errors.New("propagate: invalid protocol version")
)
