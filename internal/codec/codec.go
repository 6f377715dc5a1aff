// Package codec packs and unpacks vectors into the fixed-length blob
// layout the store writes to the vectors table: dimension*4 bytes of
// little-endian float32, with no length prefix. The dimension is carried
// out-of-band by the store (the vectors table has exactly one dimension
// per open store), so the blob itself stays minimal.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode packs v into dimension*4 little-endian bytes. Callers are
// expected to have already validated and normalized v.
func Encode(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// Decode unpacks a blob written by Encode. It rejects blobs whose length
// is not a multiple of 4 (InvalidLengthError), matching the store's
// "length(vector) mod 4 = 0" invariant. It never aliases the input
// slice's backing array, so decoding never assumes any particular
// starting alignment.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, &InvalidLengthError{Length: len(b)}
	}
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// InvalidLengthError reports a blob whose length could not possibly hold
// a whole number of float32 values.
type InvalidLengthError struct {
	Length int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("codec: blob length %d is not a multiple of 4", e.Length)
}

// Normalize returns v scaled to unit L2 norm. A zero vector (sum of
// squares == 0) is returned unchanged, since there is no direction to
// scale it to.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// AllFinite reports whether every component of v is neither NaN nor Inf.
func AllFinite(v []float32) bool {
	for _, f := range v {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return false
		}
	}
	return true
}

// DotProduct is the similarity measure registered as the store's scalar
// SQL function. Vectors are normalized exactly once at write time (and
// the query vector is normalized before querying), so dot product and
// cosine similarity coincide.
func DotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
