// SPDX-License-Identifier: Unlicense OR BSD-3-Clause

package varmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func fourAxisModel(t *testing.T) *VariationModel {
	t.Helper()
	locations := []NormalizedLocation{
		{},
		{"wght": 1},
		{"wdth": 1},
		{"wght": 1, "wdth": 1},
		{"wght": 0.5, "wdth": 1},
		{"wght": 1, "wdth": 0.5},
	}
	m, err := NewVariationModel(locations, []Tag{"wght", "wdth"})
	require.NoError(t, err)
	return m
}

func TestExactnessAtMasters(t *testing.T) {
	m := fourAxisModel(t)
	values := []float64{0, 10, 20, 70, 50, 60}

	for k, sortedLoc := range m.SortedLocations() {
		got, err := m.InterpolateFromMasters(sortedLoc, values)
		require.NoError(t, err)
		require.NotNil(t, got, "master %d should contribute", k)
		want := values[m.reverseMapping[k]]
		require.True(t, floats.EqualWithinAbs(want, *got, 1e-9),
			"at master %d: want %v got %v", k, want, *got)
	}
}

func TestPermutationConsistency(t *testing.T) {
	m := fourAxisModel(t)
	for i, j := range m.mapping {
		require.Equal(t, i, m.reverseMapping[j])
	}
	for j, i := range m.reverseMapping {
		require.Equal(t, j, m.mapping[i])
	}
}

func TestLinearity(t *testing.T) {
	m := fourAxisModel(t)
	u := []float64{0, 10, 20, 70, 50, 60}
	v := []float64{5, -3, 8, 12, 0, 40}
	const a, b = 2.0, 3.0

	combo := make([]float64, len(u))
	for i := range combo {
		combo[i] = a*u[i] + b*v[i]
	}

	loc := NormalizedLocation{"wght": 0.3, "wdth": 0.7}
	interpU, err := m.InterpolateFromMasters(loc, u)
	require.NoError(t, err)
	interpV, err := m.InterpolateFromMasters(loc, v)
	require.NoError(t, err)
	interpCombo, err := m.InterpolateFromMasters(loc, combo)
	require.NoError(t, err)

	require.NotNil(t, interpU)
	require.NotNil(t, interpV)
	require.NotNil(t, interpCombo)
	want := a*(*interpU) + b*(*interpV)
	require.True(t, floats.EqualWithinAbs(want, *interpCombo, 1e-9), "want %v got %v", want, *interpCombo)
}

func TestScalarSumAtDefault(t *testing.T) {
	m := fourAxisModel(t)
	scalars := m.GetMasterScalars(NormalizedLocation{})
	for k, s := range scalars {
		if k == 0 {
			require.InDelta(t, 1.0, s, 1e-9)
		} else {
			require.InDelta(t, 0.0, s, 1e-9)
		}
	}
}

func TestSupportBound(t *testing.T) {
	m := fourAxisModel(t)
	locs := []NormalizedLocation{
		{"wght": -1, "wdth": -1},
		{"wght": 1, "wdth": 1},
		{"wght": -0.3, "wdth": 0.8},
		{"wght": 0.25, "wdth": -0.6},
	}
	for _, loc := range locs {
		for i, s := range m.GetScalars(loc) {
			require.GreaterOrEqual(t, s, 0.0, "master %d at %v", i, loc)
			require.LessOrEqual(t, s, 1.0, "master %d at %v", i, loc)
		}
	}
}

func TestGetDeltasLengthMismatch(t *testing.T) {
	m := fourAxisModel(t)
	_, err := m.GetDeltas([]float64{1, 2, 3})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestGetDeltasRoundTrip(t *testing.T) {
	m := fourAxisModel(t)
	values := []float64{3, 7, -2, 9, 4, 1}
	deltas, err := m.GetDeltas(values)
	require.NoError(t, err)

	for k, sortedLoc := range m.SortedLocations() {
		got, err := m.InterpolateFromDeltas(sortedLoc, deltas)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.InDelta(t, values[m.reverseMapping[k]], *got, 1e-9)
	}
}

func TestInterpolateFromMastersAndScalarsAsymmetry(t *testing.T) {
	m := fourAxisModel(t)
	values := []float64{0, 10, 20, 70, 50, 60}
	loc := NormalizedLocation{"wght": 0.5, "wdth": 0.5}

	deltaScalars := m.GetScalars(loc)
	viaDeltaScalars, err := m.InterpolateFromMastersAndScalars(values, deltaScalars)
	require.NoError(t, err)

	viaMasters, err := m.InterpolateFromMasters(loc, values)
	require.NoError(t, err)

	require.NotNil(t, viaDeltaScalars)
	require.NotNil(t, viaMasters)
	require.InDelta(t, *viaMasters, *viaDeltaScalars, 1e-9)

	// Applying delta-scalars directly via InterpolateFromValuesAndScalars,
	// without the GetDeltas step, is a different (and generally wrong)
	// computation when master values are passed straight through.
	direct, err := InterpolateFromValuesAndScalars(values, deltaScalars)
	require.NoError(t, err)
	require.NotNil(t, direct)
	// Not asserting inequality unconditionally (degenerate models could
	// coincide), just that the two entry points are independently callable
	// and documented to mean different things.
	_ = direct
}

func TestNoContributionSentinel(t *testing.T) {
	m := fourAxisModel(t)
	// Far outside every support's influence along wght: a location of 1 on
	// an axis no master in this set extends beyond its own supports is
	// still covered by the default master (empty support always
	// contributes), so construct a values/scalars pair directly instead to
	// exercise the pure "no contribution" path.
	got, err := InterpolateFromValuesAndScalars([]float64{1, 2, 3}, []float64{0, 0, 0})
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = InterpolateFromValuesAndScalars([]float64{1, 2, 3}, []float64{0, 0, 1})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.InDelta(t, 3, *got, 1e-9)
}

func TestInterpolateFromValuesAndScalarsLengthMismatch(t *testing.T) {
	_, err := InterpolateFromValuesAndScalars([]float64{1, 2}, []float64{1})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDuplicateMaster(t *testing.T) {
	_, err := NewVariationModel([]NormalizedLocation{
		{},
		{"wght": 1, "wdth": 0},
		{"wght": 1},
	}, nil)
	require.ErrorIs(t, err, ErrDuplicateMaster)
}

func TestOutOfRangeCoordinate(t *testing.T) {
	_, err := NewVariationModel([]NormalizedLocation{
		{},
		{"wght": 1.5},
	}, nil)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestGetSubModelCompleteReturnsReceiver(t *testing.T) {
	m := fourAxisModel(t)
	v := []float64{1, 2, 3, 4, 5, 6}
	items := make([]*float64, len(v))
	for i := range v {
		items[i] = &v[i]
	}
	sub, values, err := m.GetSubModel(items)
	require.NoError(t, err)
	require.Same(t, m, sub)
	require.Equal(t, v, values)
}

func TestGetSubModelCacheIdentity(t *testing.T) {
	m := fourAxisModel(t)
	v0, v1, v3 := 1.0, 2.0, 4.0
	items := []*float64{&v0, &v1, nil, &v3, nil, nil}

	sub1, values1, err := m.GetSubModel(items)
	require.NoError(t, err)
	require.NotSame(t, m, sub1)
	require.Equal(t, []float64{1, 2, 4}, values1)

	sub2, values2, err := m.GetSubModel(items)
	require.NoError(t, err)
	require.Same(t, sub1, sub2)
	require.Equal(t, values1, values2)

	// A different present-index set must miss the cache.
	w0, w2 := 9.0, 8.0
	items2 := []*float64{&w0, nil, &w2, nil, nil, nil}
	sub3, _, err := m.GetSubModel(items2)
	require.NoError(t, err)
	require.NotSame(t, sub1, sub3)
}

func TestGetSubModelLengthMismatch(t *testing.T) {
	m := fourAxisModel(t)
	_, _, err := m.GetSubModel([]*float64{nil})
	require.ErrorIs(t, err, ErrLengthMismatch)
}
