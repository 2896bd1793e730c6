package extract

import "math"

// Entropy returns the Shannon entropy (base 2) of b, in [0, 8].
// Empty input has entropy 0.
func Entropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}

	var counts [256]int
	for _, c := range b {
		counts[c]++
	}

	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	// Single-symbol input yields -0.
	if h <= 0 {
		return 0
	}
	if h > 8 {
		return 8
	}
	return h
}
