package vector

import (
	"strata/internal/key"
	"strata/internal/value"
)

// SearchResult is one scored nearest-neighbor hit.
type SearchResult struct {
	Target   key.Key
	Distance float32
}

// SearchKNN finds the k nearest neighbors to query using the index's
// configured EfSearch.
func (idx *Index) SearchKNN(query *value.Vector, k int) ([]SearchResult, error) {
	return idx.SearchKNNWithEf(query, k, idx.config.EfSearch)
}

// SearchKNNWithEf finds the k nearest neighbors with an explicit ef
// candidate-list size.
func (idx *Index) SearchKNNWithEf(query *value.Vector, k int, ef int) ([]SearchResult, error) {
	if query.Dimension() != idx.config.Dimension {
		return nil, ErrDimensionMismatch
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return []SearchResult{}, nil
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.searchLayerClosest(query, ep, l)
	}

	candidates := idx.searchLayer(query, ep, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, nodeID := range candidates {
		n := idx.nodes[nodeID]
		if n == nil {
			continue
		}
		results = append(results, SearchResult{Target: n.target, Distance: query.Distance(n.vector, idx.config.Metric)})
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	return results, nil
}
