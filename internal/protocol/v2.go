package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"votegate/internal/vote"
)

// Structured frame layout: the two magic bytes, a 16-bit big-endian
// envelope length, then a JSON envelope of exactly that length. The
// envelope carries the site identifier, the payload as a string (so the
// signature covers its exact bytes), and a base64 HMAC-SHA256 of the
// payload keyed with the site's token.

// v2HeaderSize is the magic plus the length prefix.
const v2HeaderSize = 4

// maxV2FrameLen keeps a declared frame within the inbound bound.
const maxV2FrameLen = MaxInbound - v2HeaderSize

// TokenLookup resolves a site identifier to its shared-secret token.
type TokenLookup interface {
	Token(site string) (string, bool)
}

type v2Envelope struct {
	Site      string `json:"site"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type v2Payload struct {
	ServiceName string `json:"serviceName"`
	Username    string `json:"username"`
	Address     string `json:"address"`
	Timestamp   string `json:"timestamp"`
	Challenge   string `json:"challenge"`
}

// V2FrameLen reports the total frame size, header included, once the header
// is buffered. It returns -1 while more bytes are needed and a FramingError
// for a declared length outside (0, maxV2FrameLen].
func V2FrameLen(buf []byte) (int, error) {
	if len(buf) < v2HeaderSize {
		return -1, nil
	}
	n := int(binary.BigEndian.Uint16(buf[2:4]))
	if n == 0 || n > maxV2FrameLen {
		return 0, &FramingError{Reason: fmt.Sprintf("declared frame length %d out of bounds", n)}
	}
	return v2HeaderSize + n, nil
}

// DecodeV2 verifies and parses one complete structured frame. It returns
// the decoded vote and the authenticated site identifier.
//
// Verification order matters: the signature is checked before the payload
// is parsed, so nothing inside the payload is trusted until the site's
// token has vouched for it. The echoed challenge binds the submission to
// this connection's greeting.
func DecodeV2(frame []byte, tokens TokenLookup, challenge string) (*vote.Vote, string, error) {
	total, err := V2FrameLen(frame)
	if err != nil {
		return nil, "", err
	}
	if total < 0 || len(frame) < total {
		return nil, "", &FramingError{Reason: "incomplete frame"}
	}

	var env v2Envelope
	if err := json.Unmarshal(frame[v2HeaderSize:total], &env); err != nil {
		return nil, "", &DecodeError{Reason: fmt.Sprintf("malformed envelope: %v", err)}
	}
	if env.Site == "" {
		return nil, "", &DecodeError{Reason: "envelope is missing the site identifier"}
	}

	token, ok := tokens.Token(env.Site)
	if !ok {
		return nil, "", &AuthError{Site: env.Site, Reason: "unknown site"}
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, "", &AuthError{Site: env.Site, Reason: "signature is not valid base64"}
	}
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(env.Payload))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, "", &AuthError{Site: env.Site, Reason: "signature mismatch"}
	}

	var p v2Payload
	if err := json.Unmarshal([]byte(env.Payload), &p); err != nil {
		return nil, "", &DecodeError{Reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	if p.Challenge != challenge {
		return nil, "", &DecodeError{Reason: "challenge mismatch"}
	}
	if p.ServiceName == "" || p.Username == "" || p.Address == "" || p.Timestamp == "" {
		return nil, "", &DecodeError{Reason: "payload is missing required vote fields"}
	}

	return &vote.Vote{
		ServiceName: p.ServiceName,
		Username:    p.Username,
		Address:     p.Address,
		Timestamp:   p.Timestamp,
	}, env.Site, nil
}

// EncodeV2 builds a complete signed frame for a vote. Site clients (and the
// tests) are the intended users; the server itself only decodes.
func EncodeV2(site, token string, v *vote.Vote, challenge string) ([]byte, error) {
	payload, err := json.Marshal(v2Payload{
		ServiceName: v.ServiceName,
		Username:    v.Username,
		Address:     v.Address,
		Timestamp:   v.Timestamp,
		Challenge:   challenge,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(payload)

	env, err := json.Marshal(v2Envelope{
		Site:      site,
		Payload:   string(payload),
		Signature: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(env) > maxV2FrameLen {
		return nil, fmt.Errorf("frame length %d exceeds protocol maximum %d", len(env), maxV2FrameLen)
	}

	frame := make([]byte, v2HeaderSize+len(env))
	frame[0] = v2Magic[0]
	frame[1] = v2Magic[1]
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(env)))
	copy(frame[v2HeaderSize:], env)
	return frame, nil
}
