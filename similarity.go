package sheetvec

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strings"

	"github.com/sheetvec/sheetvec/internal/codec"
	"modernc.org/sqlite"
)

// SimilarityFunc scores two decoded vectors. Kept as a named registry
// so OpenOptions can pick which one backs the registered SQL scalar
// function.
type SimilarityFunc func(a, b []float32) float64

var similarityFuncs = map[string]SimilarityFunc{
	"dot":    codec.DotProduct,
	"cosine": cosineSimilarity,
}

// cosineSimilarity is offered alongside "dot" for stores that choose not
// to normalize at write time (query still normalizes its own vector
// regardless). Vectors of mismatched length score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	n := len(a)
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// registerSimilarityFunction (re-)registers name as a deterministic
// two-argument SQL scalar function over blob-encoded vectors, backed by
// fn. Both operands are decoded with codec.Decode; a non-blob operand or
// a blob whose length is not a multiple of 4 produces a SQL error, which
// the query path diagnoses against the vectors table (see
// diagnoseQueryError in query.go) rather than here.
//
// modernc.org/sqlite keeps registered functions at the process level, not
// per-connection, so re-registering the same name after every export (the
// store's documented defense against the host engine dropping
// user-registered functions post-export) is expected to report the name
// as already registered on most calls; that specific failure is treated
// as success.
func registerSimilarityFunction(name string, fn SimilarityFunc) error {
	err := sqlite.RegisterDeterministicScalarFunction(name, 2,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			a, err := decodeOperand(args, 0)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			b, err := decodeOperand(args, 1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return fn(a, b), nil
		})
	if err != nil {
		if isAlreadyRegistered(err) {
			return nil
		}
		return err
	}
	return nil
}

func decodeOperand(args []driver.Value, i int) ([]float32, error) {
	raw, ok := args[i].([]byte)
	if !ok {
		return nil, fmt.Errorf("operand %d is not a blob", i)
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func isAlreadyRegistered(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") || strings.Contains(msg, "exist")
}
