// Package simhash computes 64-bit SimHash fingerprints. Snapshots of the
// same page taken for two different URLs (redirects, mirrors) land within
// a few bits of each other.
package simhash

import (
	"fmt"
	"hash/fnv"
	"math/bits"
)

// Fingerprint computes the SimHash of a token sequence using FNV-64a per token.
func Fingerprint(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are within threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Hex renders a fingerprint as 16 lowercase hex digits.
func Hex(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
