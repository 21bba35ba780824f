package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/flashbots/maskagg/masking"
)

func FuzzCodecRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add(binary.BigEndian.AppendUint64(nil, 3))
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x80, 0, 0, 0, 0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, raw []byte) {
		v := make(masking.Vector, 0, len(raw)/8)
		for len(raw) >= 8 {
			v = append(v, int64(binary.BigEndian.Uint64(raw)))
			raw = raw[8:]
		}

		encoded := EncodeVector(v)
		decoded, err := DecodeVector(encoded)

		// Invariant 1: every encoded vector decodes
		if err != nil {
			t.Fatalf("decoding %q: %v", encoded, err)
		}

		// Invariant 2: decoding restores the exact values
		if !decoded.Equal(v) {
			t.Errorf("round trip mismatch: got %v, want %v", decoded, v)
		}
	})
}

func FuzzDecodeVector(f *testing.F) {
	f.Add("3$3*-7*0*")
	f.Add("0$")
	f.Add("3$1*2*")
	f.Add("1$5*x")
	f.Add("$")

	f.Fuzz(func(t *testing.T, payload string) {
		v, err := DecodeVector(payload)

		// Invariant 1: failures are always format errors
		if err != nil {
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("unexpected error type %T", err)
			}
			return
		}

		// Invariant 2: accepted payloads re-encode to an equivalent payload
		again, err := DecodeVector(EncodeVector(v))
		if err != nil || !again.Equal(v) {
			t.Errorf("re-encoding %v failed: %v", v, err)
		}
	})
}
