package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Version identifies which wire protocol a connection speaks.
type Version int

const (
	VersionUnknown Version = iota
	VersionLegacy
	VersionV2
)

// String returns the version identifier used in logs and metrics
func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "legacy"
	case VersionV2:
		return "v2"
	default:
		return "unknown"
	}
}

// Session holds per-connection protocol state. It is owned exclusively by
// the goroutine handling that connection and must never be shared.
type Session struct {
	// ID correlates log lines for one connection
	ID string
	// RemoteAddr is the peer address as reported by the socket
	RemoteAddr string
	// Version is set once the differentiator has classified the connection
	Version Version
	// Challenge is the random value issued in the greeting; a structured
	// payload must echo it back
	Challenge string

	buf []byte
	max int
}

// NewSession creates the state for one accepted connection.
func NewSession(remoteAddr string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		Version:    VersionUnknown,
		max:        MaxInbound,
	}
}

// Append accumulates inbound bytes. It fails with a FramingError once the
// connection has sent more than the classification bound allows; adversarial
// senders cannot grow the buffer past that.
func (s *Session) Append(p []byte) error {
	if len(s.buf)+len(p) > s.max {
		return &FramingError{Reason: fmt.Sprintf("inbound buffer exceeded %d bytes without a complete vote", s.max)}
	}
	s.buf = append(s.buf, p...)
	return nil
}

// Buffered returns the bytes accumulated so far. The slice is only valid
// until the next Append; nothing is consumed by reading it.
func (s *Session) Buffered() []byte {
	return s.buf
}
