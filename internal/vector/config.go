// Package vector implements the HNSW approximate-nearest-neighbor
// index behind the vector-similarity primitive. Node identity is a
// key.Key, so the index shares the store's addressing end to end.
package vector

import (
	"math"

	"strata/internal/value"
)

// Config holds HNSW index parameters.
type Config struct {
	M                int
	MMax0            int
	EfConstruction   int
	EfSearch         int
	Dimension        int
	ML               float64
	UseHeuristic     bool
	ExtendCandidates bool
	Metric           value.DistanceMetric
}

func DefaultConfig(dimension int) Config {
	m := 16
	return Config{
		M:              m,
		MMax0:          m * 2,
		EfConstruction: 200,
		EfSearch:       50,
		Dimension:      dimension,
		ML:             1.0 / math.Log(float64(m)),
		Metric:         value.DistanceCosine,
	}
}
