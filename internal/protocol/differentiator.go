package protocol

// Classification is the differentiator's verdict for a partially buffered
// connection.
type Classification int

const (
	// NeedMoreData means no decision can be made yet; keep buffering
	NeedMoreData Classification = iota
	// ClassifiedLegacy selects the RSA fixed-block decoder
	ClassifiedLegacy
	// ClassifiedV2 selects the token-signed structured decoder
	ClassifiedV2
	// ClassifiedInvalid means the bound was exceeded with neither pattern
	ClassifiedInvalid
)

const (
	// LegacyBlockSize is the ciphertext length of a legacy vote: the
	// modulus length of the fixed 2048-bit host key.
	LegacyBlockSize = 256

	// MaxInbound bounds how much one connection may buffer before it must
	// have produced a complete vote.
	MaxInbound = 4096
)

// v2Magic opens every structured frame. A legacy block is raw ciphertext
// with no marker, so classification works by exclusion: magic means v2,
// a full block's worth of anything else means legacy.
var v2Magic = [2]byte{0x73, 0x3A}

// Classify inspects buffered bytes without consuming them. Callers re-invoke
// it as more data arrives until the verdict is no longer NeedMoreData.
func Classify(buf []byte) Classification {
	if len(buf) >= 1 && buf[0] == v2Magic[0] {
		if len(buf) < 2 {
			return NeedMoreData
		}
		if buf[1] == v2Magic[1] {
			return ClassifiedV2
		}
		// First byte matched by chance; legacy ciphertext may start with
		// anything, so fall through to the size check.
	}
	if len(buf) >= LegacyBlockSize {
		return ClassifiedLegacy
	}
	if len(buf) >= MaxInbound {
		return ClassifiedInvalid
	}
	return NeedMoreData
}
