// Package stats provides the small numeric and grouping helpers the
// report aggregation rolls up with.
package stats

import "sort"

// Average is the arithmetic mean, or 0 for empty input.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

// Median is the middle value of the sorted sequence, the mean of the
// two middle values for even length, or 0 for empty input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// GroupBy partitions items by key, preserving each item's relative
// order within its bucket. The returned key slice is in first-seen
// order so iteration is deterministic.
func GroupBy[T any](items []T, key func(T) string) (map[string][]T, []string) {
	grouped := make(map[string][]T)
	var keys []string

	for _, item := range items {
		k := key(item)
		if _, seen := grouped[k]; !seen {
			keys = append(keys, k)
		}
		grouped[k] = append(grouped[k], item)
	}
	return grouped, keys
}
