package bloom

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Funnel encodes an item into the bytes that are hashed. It must be deterministic.
type Funnel[T any] func(item T) []byte

func StringFunnel(s string) []byte {
	return []byte(s)
}

// DoubledStringFunnel writes the utf-8 bytes of s twice, the byte encoding user ids have always
// been hashed with. Only the encoding is shared, bit arrays built with another hash are not readable.
func DoubledStringFunnel(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	out = append(out, s...)
	return append(out, s...)
}

func BytesFunnel(b []byte) []byte {
	return b
}

func Uint64Funnel(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// StringFunnelByName returns the string funnel configured by name.
func StringFunnelByName(name string) (Funnel[string], error) {
	switch name {
	case "", "string":
		return StringFunnel, nil
	case "doubled_string":
		return DoubledStringFunnel, nil
	default:
		return nil, fmt.Errorf("%w: unknown funnel '%s'", ErrInvalidParameter, name)
	}
}

// Offsets returns spec.HashCount bit positions in [0, spec.BitSize) for data.
func Offsets(data []byte, spec Spec) []uint64 {
	h := xxh3.Hash128(data)
	h1, h2 := h.Lo, h.Hi
	offsets := make([]uint64, spec.HashCount)
	for i := uint64(1); i <= spec.HashCount; i++ {
		// wraps like the signed arithmetic it replaces
		offsets[i-1] = uint64(fold(int64(h1+i*h2))) % spec.BitSize
	}
	return offsets
}

// fold maps a negative combined hash to a non-negative one by bitwise complement, not negation.
// Offsets of existing bit arrays depend on this exact mapping.
func fold(combined int64) int64 {
	if combined < 0 {
		return ^combined
	}
	return combined
}
