package protocol

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// ProtocolVersion is the capability advertised in the greeting banner.
const ProtocolVersion = "2"

// challengeBytes is the entropy behind each per-connection challenge.
const challengeBytes = 24

// NewChallenge returns a random challenge string for one connection.
func NewChallenge() (string, error) {
	b := make([]byte, challengeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Greet issues a fresh challenge, stores it in the session, and writes the
// banner. The challenge must be in the session before the banner goes out so
// a fast sender can never race an unset challenge. A write error means the
// peer is gone; the caller tears the connection down without reporting it
// upward.
func Greet(s *Session, w io.Writer) error {
	ch, err := NewChallenge()
	if err != nil {
		return err
	}
	s.Challenge = ch
	_, err = fmt.Fprintf(w, "VOTIFIER %s %s\n", ProtocolVersion, ch)
	return err
}
