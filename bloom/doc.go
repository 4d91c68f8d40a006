/*
Package bloom implements a bloom filter whose bit array lives in a shared key-value store.

Sizing follows the usual optimal formulas: for n expected insertions and a target false
positive probability p the bit array holds m = ceil(-n*ln(p)/ln(2)^2) bits and k =
max(1, round(m/n*ln(2))) bits are set per item.

Bit positions come from a single 128-bit xxh3 hash of the funnelled item, split into two
64-bit halves h1 and h2 and combined as h1 + i*h2 for i in 1..k (Kirsch-Mitzenmacher double
hashing). Negative sums are folded with a bitwise complement before taking the modulus.
Filters built with the same key, spec and funnel compute identical positions, so any number
of processes can share one filter.

The filter never reports a false negative for an item whose Add completed. Bits are never
cleared; there is no removal.
*/
package bloom
