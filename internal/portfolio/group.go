package portfolio

// grouping is the result of a typed group-by reduction. Keys keep the order
// of the seed keys followed by first appearance in the input.
type grouping[K comparable, V any] struct {
	Keys   []K
	Values map[K]V
}

// groupBy folds items into one accumulator per key. Seed keys are always
// present, even when no item maps to them.
func groupBy[T any, K comparable, V any](items []T, seed []K, key func(T) K, fold func(V, T) V) grouping[K, V] {
	g := grouping[K, V]{Values: make(map[K]V, len(seed))}
	for _, k := range seed {
		if _, ok := g.Values[k]; ok {
			continue
		}
		var zero V
		g.Keys = append(g.Keys, k)
		g.Values[k] = zero
	}
	for _, item := range items {
		k := key(item)
		acc, ok := g.Values[k]
		if !ok {
			g.Keys = append(g.Keys, k)
		}
		g.Values[k] = fold(acc, item)
	}
	return g
}

// Mean is an arithmetic mean that reports an explicit no-data marker for
// empty groups instead of dividing by zero.
type Mean struct {
	Count  int     `json:"count"`
	Value  float64 `json:"value"`
	NoData bool    `json:"no_data"`
	sum    float64
}

func (m Mean) add(v float64) Mean {
	m.Count++
	m.sum += v
	return m
}

func (m Mean) finish() Mean {
	if m.Count == 0 {
		return Mean{NoData: true}
	}
	return Mean{Count: m.Count, Value: m.sum / float64(m.Count)}
}
