package knowledge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"eventqual/internal/embedding"
)

// encodeVector packs a vector as little-endian float32, the layout sqlite-vec reads.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector accepts a float32 blob or JSON array text.
func decodeVector(v any) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x) > 0 && x[0] == '[' {
			return decodeJSONVector(string(x))
		}
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vec_distance_cosine: blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		if strings.HasPrefix(strings.TrimSpace(x), "[") {
			return decodeJSONVector(x)
		}
		return decodeVector([]byte(x))
	default:
		return nil, fmt.Errorf("vec_distance_cosine: unsupported vector type %T", v)
	}
}

func decodeJSONVector(s string) ([]float32, error) {
	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("vec_distance_cosine: bad JSON vector: %w", err)
	}
	return out, nil
}

// cosineDistance returns 1 - cos(a, b), in [0,2]. Empty or zero vectors are
// treated as orthogonal.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 1, nil
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vec_distance_cosine: dimension mismatch %d vs %d", len(a), len(b))
	}
	sim, err := embedding.CosineSimilarity(a, b)
	if err != nil {
		return 0, fmt.Errorf("vec_distance_cosine: %w", err)
	}
	// rounding can push identical vectors slightly below zero
	return math.Max(0, 1-sim), nil
}

func vecDistanceCosine(x, y any) (float64, error) {
	a, err := decodeVector(x)
	if err != nil {
		return 0, err
	}
	b, err := decodeVector(y)
	if err != nil {
		return 0, err
	}
	return cosineDistance(a, b)
}
