package ordering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeySpaceFallsBackToDefaultGap(t *testing.T) {
	for _, gap := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		assert.Equal(t, float64(DefaultGap), NewKeySpace(gap).Gap())
	}
	assert.Equal(t, 10.0, NewKeySpace(10).Gap())
}

func TestKeyForAppend(t *testing.T) {
	ks := NewKeySpace(1000)

	assert.Equal(t, 1000.0, ks.KeyForAppend(0, false))
	assert.Equal(t, 4000.0, ks.KeyForAppend(3000, true))
	assert.Equal(t, 1250.5, ks.KeyForAppend(250.5, true))
}

func TestKeyForMove(t *testing.T) {
	ks := NewKeySpace(1000)
	sorted := []float64{1000, 2000, 3000}

	tests := []struct {
		name   string
		sorted []float64
		target int
		want   float64
	}{
		{name: "empty list", sorted: nil, target: 0, want: 1000},
		{name: "head", sorted: sorted, target: 0, want: 500},
		{name: "between first and second", sorted: sorted, target: 1, want: 1500},
		{name: "between second and third", sorted: sorted, target: 2, want: 2500},
		{name: "tail", sorted: sorted, target: 3, want: 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ks.KeyForMove(tt.sorted, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyForMoveOutOfRange(t *testing.T) {
	ks := NewKeySpace(1000)

	_, err := ks.KeyForMove([]float64{1000}, -1)
	assert.ErrorIs(t, err, ErrTargetOutOfRange)

	_, err = ks.KeyForMove([]float64{1000}, 2)
	assert.ErrorIs(t, err, ErrTargetOutOfRange)
}

func TestKeyForMoveDetectsCollapse(t *testing.T) {
	ks := NewKeySpace(1000)

	lo := 1000.0
	hi := math.Nextafter(lo, math.Inf(1))
	_, err := ks.KeyForMove([]float64{lo, hi}, 1)
	assert.ErrorIs(t, err, ErrPrecisionCollapse)

	_, err = ks.KeyForMove([]float64{math.SmallestNonzeroFloat64}, 0)
	assert.ErrorIs(t, err, ErrPrecisionCollapse)

	_, err = ks.KeyForMove([]float64{0, 1000}, 0)
	assert.ErrorIs(t, err, ErrPrecisionCollapse)
}

func TestRepeatedMidpointEventuallyCollapses(t *testing.T) {
	ks := NewKeySpace(1000)
	sorted := []float64{1000, 2000}

	collapsed := false
	for i := 0; i < 200; i++ {
		key, err := ks.KeyForMove(sorted, 1)
		if err != nil {
			require.ErrorIs(t, err, ErrPrecisionCollapse)
			collapsed = true
			break
		}
		require.Greater(t, key, sorted[0])
		require.Less(t, key, sorted[1])
		sorted[1] = key
	}
	assert.True(t, collapsed, "expected the gap after index 0 to run out of precision")
}

func TestRenumber(t *testing.T) {
	ks := NewKeySpace(1000)

	assert.Equal(t, []float64{1000, 2000, 3000}, ks.Renumber(3))
	assert.Empty(t, ks.Renumber(0))
	assert.True(t, IsStrictlyIncreasing(ks.Renumber(50)))
}

func TestInsertionIndex(t *testing.T) {
	sorted := []float64{1000, 2000, 3000}

	tests := []struct {
		name    string
		desired float64
		want    int
	}{
		{name: "before everything", desired: 1, want: 0},
		{name: "between", desired: 1500, want: 1},
		{name: "after everything", desired: 9000, want: 3},
		{name: "equal key goes before", desired: 2000, want: 1},
		{name: "negative", desired: -10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InsertionIndex(sorted, tt.desired))
		})
	}

	assert.Equal(t, 0, InsertionIndex(nil, 42))
}

func TestIsStrictlyIncreasing(t *testing.T) {
	assert.True(t, IsStrictlyIncreasing(nil))
	assert.True(t, IsStrictlyIncreasing([]float64{1}))
	assert.True(t, IsStrictlyIncreasing([]float64{1, 2, 3}))
	assert.False(t, IsStrictlyIncreasing([]float64{1, 1, 3}))
	assert.False(t, IsStrictlyIncreasing([]float64{3, 2}))
}
