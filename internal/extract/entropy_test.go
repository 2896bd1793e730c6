package extract

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEntropy(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want float64
	}{
		{"empty", nil, 0},
		{"all zero", make([]byte, 4096), 0},
		{"single symbol", bytes.Repeat([]byte{0x90}, 17), 0},
		{"two symbols", []byte("abababab"), 1},
		{"uniform", allBytes(), 8},
	}
	for _, tc := range tests {
		if got := Entropy(tc.in); got != tc.want {
			t.Errorf("%s: Entropy = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEntropy_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(2048))
		rng.Read(b)
		if h := Entropy(b); h < 0 || h > 8 {
			t.Fatalf("entropy %v out of [0,8] for %d bytes", h, len(b))
		}
	}
}
