// Package normalize turns backend payloads into render-ready magnitudes: bar heights, heat
// levels and clamped percentages. Every function is pure and leaves its input untouched.
package normalize

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultMinPercent keeps nonzero bars visible.
const DefaultMinPercent = 2.0

// Heights scales values to percentages of the series maximum. The denominator is floored at
// 1 so an all-zero series yields all-zero heights, and every nonzero value is lifted to at
// least minPercent.
func Heights(values []float64, minPercent float64) []float64 {
	denominator := 1.0
	for _, value := range values {
		if value > denominator {
			denominator = value
		}
	}

	heights := make([]float64, len(values))
	for i, value := range values {
		if value <= 0 || math.IsNaN(value) {
			continue
		}
		height := value / denominator * 100
		if height < minPercent {
			height = minPercent
		}
		heights[i] = math.Min(height, 100)
	}
	return heights
}

// Level quantizes count into 0..4 against the series maximum: 0 stays 0, any positive count
// maps to ceil(4*count/max) clamped to 1..4.
func Level(count, max int) int {
	if count <= 0 {
		return 0
	}
	if max < count {
		max = count
	}
	level := int(math.Ceil(4 * float64(count) / float64(max)))
	switch {
	case level < 1:
		return 1
	case level > 4:
		return 4
	}
	return level
}

// Tail returns a copy of the last n entries in their original order.
func Tail[T any](xs []T, n int) []T {
	if n <= 0 {
		return []T{}
	}
	start := len(xs) - n
	if start < 0 {
		start = 0
	}
	out := make([]T, len(xs)-start)
	copy(out, xs[start:])
	return out
}

// Percent clamps v to [0, 100].
func Percent(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Compact formats n as 950, 1.2K or 3.4M.
func Compact(n int) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return strconv.Itoa(n)
}
