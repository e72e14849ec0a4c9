package protocol

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"votegate/internal/vote"
)

// legacyOpcode is the first plaintext line of every legacy block.
const legacyOpcode = "VOTE"

// legacyFieldCount covers the opcode plus the four vote fields.
const legacyFieldCount = 5

// DecodeLegacy decrypts one fixed-size legacy block with the host private
// key and parses the newline-delimited plaintext:
//
//	VOTE\n<serviceName>\n<username>\n<address>\n<timestamp>\n
//
// The format carries no site identifier and no replay protection; possession
// of a matching public key is the only authentication. That is an accepted
// limitation of the legacy protocol.
func DecodeLegacy(block []byte, key *rsa.PrivateKey) (*vote.Vote, error) {
	if key == nil {
		return nil, &DecryptError{Err: fmt.Errorf("no host key configured")}
	}
	if len(block) != key.Size() {
		return nil, &DecodeError{Reason: fmt.Sprintf("legacy block is %d bytes, want %d", len(block), key.Size())}
	}

	plain, err := rsa.DecryptPKCS1v15(nil, key, block)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}

	fields := strings.Split(strings.TrimSuffix(string(plain), "\n"), "\n")
	if len(fields) < legacyFieldCount {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected %d plaintext fields, got %d", legacyFieldCount, len(fields))}
	}
	if fields[0] != legacyOpcode {
		return nil, &DecodeError{Reason: "plaintext does not start with the VOTE opcode"}
	}

	return &vote.Vote{
		ServiceName: fields[1],
		Username:    fields[2],
		Address:     fields[3],
		Timestamp:   fields[4],
	}, nil
}
