package codec

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]float32{
		{},
		{1},
		{0.5, -0.25, 3.125, -7},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}
	for i, v := range cases {
		blob := Encode(v)
		if len(blob) != len(v)*4 {
			t.Fatalf("case %d: blob length = %d, want %d", i, len(blob), len(v)*4)
		}
		got, err := Decode(blob)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if len(got) != len(v) {
			t.Fatalf("case %d: decoded length = %d, want %d", i, len(got), len(v))
		}
		for j := range v {
			if got[j] != v[j] {
				t.Fatalf("case %d: element %d = %v, want %v", i, j, got[j], v[j])
			}
		}
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for non-multiple-of-4 length")
	}
	var lenErr *InvalidLengthError
	if !asInvalidLength(err, &lenErr) {
		t.Fatalf("expected *InvalidLengthError, got %T: %v", err, err)
	}
	if lenErr.Length != 3 {
		t.Fatalf("Length = %d, want 3", lenErr.Length)
	}
}

func asInvalidLength(err error, target **InvalidLengthError) bool {
	e, ok := err.(*InvalidLengthError)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestNormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	var sumSquares float64
	for _, f := range n {
		sumSquares += float64(f) * float64(f)
	}
	if math.Abs(sumSquares-1) > 1e-6 {
		t.Fatalf("sum of squares = %v, want ~1", sumSquares)
	}
	// original is untouched
	if v[0] != 3 || v[1] != 4 {
		t.Fatalf("Normalize mutated its input: %v", v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	n := Normalize(v)
	for i, f := range n {
		if f != 0 {
			t.Fatalf("element %d = %v, want 0", i, f)
		}
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float32{1, 2, 3}) {
		t.Fatal("expected finite vector to pass")
	}
	if AllFinite([]float32{1, float32(math.NaN()), 3}) {
		t.Fatal("expected NaN to fail")
	}
	if AllFinite([]float32{1, float32(math.Inf(1)), 3}) {
		t.Fatal("expected +Inf to fail")
	}
}

func TestDotProductMatchesCosineForUnitVectors(t *testing.T) {
	a := Normalize([]float32{1, 0})
	b := Normalize([]float32{1, 1})
	got := DotProduct(a, b)
	want := 1 / math.Sqrt2
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("DotProduct = %v, want %v", got, want)
	}
}
