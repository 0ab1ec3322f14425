package core

import "golang.org/x/exp/constraints"

// Clamp returns value limited to the closed range [min, max].
func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
