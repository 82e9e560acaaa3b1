// Package ordering computes sparse order keys for user task lists.
//
// Keys are float64 values spaced by a fixed gap. A task moved between two
// neighbours takes their midpoint, which eventually runs out of precision
// when the same boundary is split often enough. Callers receiving
// ErrPrecisionCollapse must renumber the whole list instead of persisting
// the key.
package ordering

import (
	"errors"
	"math"
)

const DefaultGap = 1000

var (
	ErrPrecisionCollapse = errors.New("order key precision collapse")
	ErrTargetOutOfRange  = errors.New("target index out of range")
)

type KeySpace struct {
	gap float64
}

func NewKeySpace(gap float64) KeySpace {
	if gap <= 0 || math.IsNaN(gap) || math.IsInf(gap, 0) {
		gap = DefaultGap
	}
	return KeySpace{gap: gap}
}

func (k KeySpace) Gap() float64 {
	return k.gap
}

// KeyForAppend returns a key strictly greater than maxOrder, or the gap
// itself when the list is empty (ok is false).
func (k KeySpace) KeyForAppend(maxOrder float64, ok bool) float64 {
	if !ok {
		return k.gap
	}
	return maxOrder + k.gap
}

// KeyForMove returns a key that places an item at index target of sorted,
// which must not contain the item being moved.
func (k KeySpace) KeyForMove(sorted []float64, target int) (float64, error) {
	n := len(sorted)
	if target < 0 || target > n {
		return 0, ErrTargetOutOfRange
	}

	switch {
	case n == 0:
		return k.gap, nil
	case target == n:
		return k.KeyForAppend(sorted[n-1], true), nil
	case target == 0:
		return between(0, sorted[0])
	default:
		return between(sorted[target-1], sorted[target])
	}
}

// Renumber returns n evenly spaced keys: gap, 2*gap, ..., n*gap.
func (k KeySpace) Renumber(n int) []float64 {
	orders := make([]float64, n)
	for i := range orders {
		orders[i] = float64(i+1) * k.gap
	}
	return orders
}

// InsertionIndex returns the index of the first key that is >= desired,
// or len(sorted) when desired is past the end. An item placed there sorts
// immediately before any existing item carrying the same key.
func InsertionIndex(sorted []float64, desired float64) int {
	for i, order := range sorted {
		if order >= desired {
			return i
		}
	}
	return len(sorted)
}

// IsStrictlyIncreasing reports whether every key is greater than the one
// before it.
func IsStrictlyIncreasing(orders []float64) bool {
	for i := 1; i < len(orders); i++ {
		if !(orders[i] > orders[i-1]) {
			return false
		}
	}
	return true
}

func between(lo, hi float64) (float64, error) {
	mid := lo + (hi-lo)/2
	if !(mid > lo && mid < hi) {
		return 0, ErrPrecisionCollapse
	}
	return mid, nil
}
