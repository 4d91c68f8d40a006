package bloom

import (
	"fmt"
	"math"
)

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
	// MaxBitSize is the largest bit array redis can address (offsets up to 2^32-1).
	MaxBitSize = uint64(1) << 32
)

// Spec describes the shape of a filter. It is derived once and never changes.
type Spec struct {
	ExpectedInsertions       uint64
	FalsePositiveProbability float64
	BitSize                  uint64
	HashCount                uint64
}

// DeriveSpec calculates the bit array length and hash count for n items at false positive rate p.
func DeriveSpec(n uint64, p float64) (Spec, error) {
	if n == 0 {
		return Spec{}, fmt.Errorf("%w: expected insertions must be positive", ErrInvalidParameter)
	}
	// also rejects NaN
	if !(p > 0 && p < 1) {
		return Spec{}, fmt.Errorf("%w: false positive probability %v not in (0,1)", ErrInvalidParameter, p)
	}
	bits := math.Ceil(-float64(n) * math.Log(p) / ln2Squared)
	if bits > float64(MaxBitSize) {
		return Spec{}, fmt.Errorf("%w: %.0f bits exceeds the maximum of %d", ErrInvalidParameter, bits, MaxBitSize)
	}
	bitSize := max(uint64(bits), 1)
	hashCount := max(uint64(math.Round(float64(bitSize)/float64(n)*ln2)), 1)
	return Spec{
		ExpectedInsertions:       n,
		FalsePositiveProbability: p,
		BitSize:                  bitSize,
		HashCount:                hashCount,
	}, nil
}

// EstimateFalsePositiveRate estimates the false positive rate once itemsAdded items are present.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(spec Spec, itemsAdded uint64) float64 {
	m := float64(spec.BitSize)
	n := float64(itemsAdded)
	k := float64(spec.HashCount)
	if m == 0 || n == 0 {
		return 0
	}
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// EstimateCount estimates how many distinct items were added given the number of set bits.
// Formula: -m/k * ln(1 - X/m)
func EstimateCount(spec Spec, setBits uint64) uint64 {
	m := float64(spec.BitSize)
	k := float64(spec.HashCount)
	x := float64(setBits)
	if m == 0 || k == 0 || x == 0 {
		return 0
	}
	if x >= m {
		return math.MaxUint64
	}
	return uint64(math.Round(-m / k * math.Log(1-x/m)))
}

func (s Spec) String() string {
	return fmt.Sprintf("n=%d p=%g m=%d k=%d", s.ExpectedInsertions, s.FalsePositiveProbability, s.BitSize, s.HashCount)
}
