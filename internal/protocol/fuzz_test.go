package protocol

import (
	"testing"
)

// FuzzClassify checks the differentiator never panics and always returns a
// defined verdict.
func FuzzClassify(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x73})
	f.Add([]byte{0x73, 0x3A})
	f.Add([]byte{0x73, 0x00})
	f.Add(make([]byte, LegacyBlockSize))
	f.Add(make([]byte, MaxInbound))

	f.Fuzz(func(t *testing.T, buf []byte) {
		switch Classify(buf) {
		case NeedMoreData, ClassifiedLegacy, ClassifiedV2, ClassifiedInvalid:
		default:
			t.Error("undefined classification")
		}
	})
}

// FuzzDecodeV2 feeds arbitrary bytes through the structured decoder. It must
// reject everything that was not produced with the right token and never
// panic.
func FuzzDecodeV2(f *testing.F) {
	tokens := staticTokens{"alpha": "secret123"}

	f.Add([]byte{0x73, 0x3A, 0x00, 0x02, '{', '}'})
	f.Add([]byte{0x73, 0x3A, 0xFF, 0xFF})
	f.Add([]byte(`s:{"site":"alpha","payload":"{}","signature":"AAAA"}`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, frame []byte) {
		v, _, err := DecodeV2(frame, tokens, "challenge")
		if err == nil && v == nil {
			t.Error("nil vote without error")
		}
		// A fuzzer cannot forge an HMAC; any success here is a bug.
		if err == nil {
			t.Errorf("fuzzed frame decoded successfully: %q", frame)
		}
	})
}

// FuzzDecodeLegacy ensures arbitrary blocks fail cleanly.
func FuzzDecodeLegacy(f *testing.F) {
	f.Add(make([]byte, LegacyBlockSize))
	f.Add([]byte{})
	f.Add(make([]byte, 100))

	f.Fuzz(func(t *testing.T, block []byte) {
		v, err := DecodeLegacy(block, sharedTestKey())
		if err == nil && v == nil {
			t.Error("nil vote without error")
		}
	})
}
