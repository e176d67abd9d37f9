// SPDX-License-Identifier: Unlicense OR BSD-3-Clause

package varmodel

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// VariationModel is the canonical ordering, support derivation, and
// delta/scalar machinery for interpolating values across a set of masters
// placed in normalized design space.
//
// A VariationModel is immutable after construction, except for its
// sub-model cache (see GetSubModel), and is safe for concurrent read use.
type VariationModel struct {
	originalLocations []NormalizedLocation
	axisOrder         []Tag

	sortedLocations []NormalizedLocation
	mapping         []int // mapping[i] = index in sortedLocations of originalLocations[i]
	reverseMapping  []int // reverseMapping[j] = index in originalLocations of sortedLocations[j]

	supports     []Support
	deltaWeights []map[int]float64 // deltaWeights[i][j], j < i

	subModelMu sync.Mutex
	subModels  map[string]*VariationModel
}

// NewVariationModel builds a VariationModel over locations, in the order
// given. axisOrder is a caller-preferred axis ordering used as a tie-break
// in the canonical sort (see §4.4); it may be nil.
//
// NewVariationModel fails with ErrOutOfRange if any coordinate lies outside
// [-1, +1], or with ErrDuplicateMaster if two locations are equal after
// dropping their explicit-zero entries.
func NewVariationModel(locations []NormalizedLocation, axisOrder []Tag) (*VariationModel, error) {
	n := len(locations)

	originalLocations := make([]NormalizedLocation, n)
	sparseLocations := make([]NormalizedLocation, n)
	for i, loc := range locations {
		originalLocations[i] = cloneLocation(loc)
		sparse := sparsify(loc)
		for tag, v := range sparse {
			if v < -1 || v > 1 {
				return nil, fmt.Errorf("varmodel: axis %q coordinate %v outside [-1, 1]: %w", tag, v, ErrOutOfRange)
			}
		}
		sparseLocations[i] = sparse
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if locationsEqual(sparseLocations[i], sparseLocations[j]) {
				return nil, fmt.Errorf("varmodel: masters %d and %d share the same location: %w", i, j, ErrDuplicateMaster)
			}
		}
	}

	order := append([]Tag(nil), axisOrder...)

	axisPoints := buildAxisPoints(sparseLocations)
	keys := make([]sortKey, n)
	for i, loc := range sparseLocations {
		keys[i] = buildSortKey(loc, axisPoints, order)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return compareSortKeys(keys[idx[a]], keys[idx[b]]) < 0
	})

	sortedLocations := make([]NormalizedLocation, n)
	for i, k := range idx {
		sortedLocations[i] = sparseLocations[k]
	}

	mapping := make([]int, n)
	reverseMapping := make([]int, n)
	for i, loc := range sparseLocations {
		for j, sLoc := range sortedLocations {
			if locationsEqual(loc, sLoc) {
				mapping[i] = j
				reverseMapping[j] = i
				break
			}
		}
	}

	ranges := axisRanges(sortedLocations)
	supports := make([]Support, n)
	for i := 1; i < n; i++ {
		supports[i] = initialRegion(sortedLocations[i], ranges)
	}
	supports[0] = Support{}
	for i := 1; i < n; i++ {
		region := supports[i]
		for j := 0; j < i; j++ {
			refineRegion(region, supports[j])
		}
	}

	deltaWeights := make([]map[int]float64, n)
	for i := 0; i < n; i++ {
		row := make(map[int]float64)
		for j := 0; j < i; j++ {
			if w := SupportScalar(sortedLocations[i], supports[j]); w != 0 {
				row[j] = w
			}
		}
		deltaWeights[i] = row
	}

	return &VariationModel{
		originalLocations: originalLocations,
		axisOrder:         order,
		sortedLocations:   sortedLocations,
		mapping:           mapping,
		reverseMapping:    reverseMapping,
		supports:          supports,
		deltaWeights:      deltaWeights,
		subModels:         make(map[string]*VariationModel),
	}, nil
}

// AxisOrder returns a copy of the axis order the model was constructed
// with.
func (m *VariationModel) AxisOrder() []Tag { return append([]Tag(nil), m.axisOrder...) }

// MasterCount returns the number of masters the model was built from.
func (m *VariationModel) MasterCount() int { return len(m.originalLocations) }

// OriginalLocations returns a copy of the master locations, in the order
// originally supplied to NewVariationModel.
func (m *VariationModel) OriginalLocations() []NormalizedLocation {
	return cloneLocations(m.originalLocations)
}

// SortedLocations returns a copy of the masters' canonical order.
func (m *VariationModel) SortedLocations() []NormalizedLocation {
	return cloneLocations(m.sortedLocations)
}

// Supports returns a copy of the per-sorted-master support regions.
func (m *VariationModel) Supports() []Support {
	out := make([]Support, len(m.supports))
	for i, s := range m.supports {
		cp := make(Support, len(s))
		for tag, as := range s {
			cp[tag] = as
		}
		out[i] = cp
	}
	return out
}

// GetDeltas computes the per-sorted-master delta sequence from a slice of
// master values given in the caller's original master order.
func (m *VariationModel) GetDeltas(masterValues []float64) ([]float64, error) {
	n := len(m.sortedLocations)
	if len(masterValues) != n {
		return nil, fmt.Errorf("varmodel: got %d master values, want %d: %w", len(masterValues), n, ErrLengthMismatch)
	}
	deltas := make([]float64, n)
	for i := 0; i < n; i++ {
		v := masterValues[m.reverseMapping[i]]
		for j, w := range m.deltaWeights[i] {
			v -= w * deltas[j]
		}
		deltas[i] = v
	}
	return deltas, nil
}

// GetScalars returns, in sorted-master order, the support scalar of each
// master's region at loc.
func (m *VariationModel) GetScalars(loc NormalizedLocation) []float64 {
	out := make([]float64, len(m.supports))
	for i, s := range m.supports {
		out[i] = SupportScalar(loc, s)
	}
	return out
}

// GetMasterScalars returns, in the caller's original master order, the
// coefficients c such that the interpolated value at loc equals
// sum(c[k] * masterValues[k]).
func (m *VariationModel) GetMasterScalars(loc NormalizedLocation) []float64 {
	out := m.GetScalars(loc)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == 0 {
			continue
		}
		for j, w := range m.deltaWeights[i] {
			out[j] -= out[i] * w
		}
	}
	result := make([]float64, len(out))
	for k := range result {
		result[k] = out[m.mapping[k]]
	}
	return result
}

// InterpolateFromValuesAndScalars blends values and scalars pairwise,
// skipping any term whose scalar is 0 (treating -0 as 0). It returns nil
// (no contribution) if every term was skipped, distinct from an actual
// result of 0. It fails with ErrLengthMismatch if the slices differ in
// length.
func InterpolateFromValuesAndScalars(values, scalars []float64) (*float64, error) {
	if len(values) != len(scalars) {
		return nil, fmt.Errorf("varmodel: %d values, %d scalars: %w", len(values), len(scalars), ErrLengthMismatch)
	}
	sum := 0.0
	contributed := false
	for i, s := range scalars {
		if s == 0 {
			continue
		}
		sum += values[i] * s
		contributed = true
	}
	if !contributed {
		return nil, nil
	}
	return &sum, nil
}

// InterpolateFromDeltas blends a per-sorted-master delta sequence (as
// returned by GetDeltas) at loc.
func (m *VariationModel) InterpolateFromDeltas(loc NormalizedLocation, deltas []float64) (*float64, error) {
	return InterpolateFromValuesAndScalars(deltas, m.GetScalars(loc))
}

// InterpolateFromMasters blends master values, given in the caller's
// original master order, at loc.
func (m *VariationModel) InterpolateFromMasters(loc NormalizedLocation, masterValues []float64) (*float64, error) {
	return InterpolateFromValuesAndScalars(masterValues, m.GetMasterScalars(loc))
}

// InterpolateFromMastersAndScalars blends master values against scalars
// that came from GetScalars (i.e. delta-scalars, not master-scalars): it
// first turns masterValues into deltas via GetDeltas, then blends those
// against scalars. This is semantically distinct from
// InterpolateFromValuesAndScalars(masterValues, scalars) applied directly,
// which would treat scalars as master-scalars.
func (m *VariationModel) InterpolateFromMastersAndScalars(masterValues, scalars []float64) (*float64, error) {
	deltas, err := m.GetDeltas(masterValues)
	if err != nil {
		return nil, err
	}
	return InterpolateFromValuesAndScalars(deltas, scalars)
}

// GetSubModel returns a VariationModel restricted to the masters for which
// items holds a present value (a non-nil pointer), plus those values in
// present order. items must have one entry per original master, in
// original master order; a nil entry means that master's value is
// missing.
//
// If nothing is missing, GetSubModel returns the receiver unchanged. Two
// calls with equal sequences of present-index positions return the same
// VariationModel instance.
func (m *VariationModel) GetSubModel(items []*float64) (*VariationModel, []float64, error) {
	n := len(m.originalLocations)
	if len(items) != n {
		return nil, nil, fmt.Errorf("varmodel: got %d items, want %d: %w", len(items), n, ErrLengthMismatch)
	}

	complete := true
	for _, it := range items {
		if it == nil {
			complete = false
			break
		}
	}
	if complete {
		values := make([]float64, n)
		for i, it := range items {
			values[i] = *it
		}
		return m, values, nil
	}

	var present []int
	var values []float64
	for i, it := range items {
		if it != nil {
			present = append(present, i)
			values = append(values, *it)
		}
	}
	key := subModelKey(present)

	m.subModelMu.Lock()
	if sub, ok := m.subModels[key]; ok {
		m.subModelMu.Unlock()
		return sub, values, nil
	}
	m.subModelMu.Unlock()

	locs := make([]NormalizedLocation, len(present))
	for i, idx := range present {
		locs[i] = m.originalLocations[idx]
	}
	built, err := NewVariationModel(locs, nil)
	if err != nil {
		return nil, nil, err
	}

	m.subModelMu.Lock()
	sub, ok := m.subModels[key]
	if !ok {
		m.subModels[key] = built
		sub = built
	}
	m.subModelMu.Unlock()

	return sub, values, nil
}

func subModelKey(present []int) string {
	b := make([]byte, 0, len(present)*4)
	for _, idx := range present {
		b = strconv.AppendInt(b, int64(idx), 10)
		b = append(b, ',')
	}
	return string(b)
}

// ---------------------------- construction helpers ----------------------------

func cloneLocation(loc NormalizedLocation) NormalizedLocation {
	out := make(NormalizedLocation, len(loc))
	for tag, v := range loc {
		out[tag] = v
	}
	return out
}

func cloneLocations(locs []NormalizedLocation) []NormalizedLocation {
	out := make([]NormalizedLocation, len(locs))
	for i, loc := range locs {
		out[i] = cloneLocation(loc)
	}
	return out
}

// sparsify drops axes whose value is 0.
func sparsify(loc NormalizedLocation) NormalizedLocation {
	out := make(NormalizedLocation, len(loc))
	for tag, v := range loc {
		if v != 0 {
			out[tag] = v
		}
	}
	return out
}

func locationsEqual(a, b NormalizedLocation) bool {
	if len(a) != len(b) {
		return false
	}
	for tag, v := range a {
		if bv, ok := b[tag]; !ok || bv != v {
			return false
		}
	}
	return true
}

// buildAxisPoints collects, for every axis mentioned by a single-axis
// location, the set of values seen for that axis (always including 0).
func buildAxisPoints(locations []NormalizedLocation) map[Tag]map[NormalizedCoord]bool {
	axisPoints := make(map[Tag]map[NormalizedCoord]bool)
	for _, loc := range locations {
		if len(loc) != 1 {
			continue
		}
		for tag, v := range loc {
			pts, ok := axisPoints[tag]
			if !ok {
				pts = map[NormalizedCoord]bool{0: true}
				axisPoints[tag] = pts
			}
			pts[v] = true
		}
	}
	return axisPoints
}

// sortKey is the canonical-sort comparison key of §4.4, broken into its
// six comparison levels.
type sortKey struct {
	rank         int
	negOnPoint   int
	orderIndices []int
	orderedAxes  []Tag
	signs        []int
	abs          []float64
}

func buildSortKey(loc NormalizedLocation, axisPoints map[Tag]map[NormalizedCoord]bool, axisOrder []Tag) sortKey {
	onPoint := 0
	for tag, v := range loc {
		if pts, ok := axisPoints[tag]; ok && pts[v] {
			onPoint++
		}
	}

	seen := make(map[Tag]bool, len(loc))
	orderedAxes := make([]Tag, 0, len(loc))
	for _, tag := range axisOrder {
		if _, ok := loc[tag]; ok {
			orderedAxes = append(orderedAxes, tag)
			seen[tag] = true
		}
	}
	var rest []Tag
	for tag := range loc {
		if !seen[tag] {
			rest = append(rest, tag)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	orderedAxes = append(orderedAxes, rest...)

	axisOrderIndex := make(map[Tag]int, len(axisOrder))
	for i, tag := range axisOrder {
		axisOrderIndex[tag] = i
	}

	orderIndices := make([]int, len(orderedAxes))
	signs := make([]int, len(orderedAxes))
	abs := make([]float64, len(orderedAxes))
	for i, tag := range orderedAxes {
		if idx, ok := axisOrderIndex[tag]; ok {
			orderIndices[i] = idx
		} else {
			orderIndices[i] = 0x10000
		}
		v := float64(loc[tag])
		signs[i] = signOf(v)
		abs[i] = mathAbs(v)
	}

	return sortKey{
		rank:         len(loc),
		negOnPoint:   -onPoint,
		orderIndices: orderIndices,
		orderedAxes:  orderedAxes,
		signs:        signs,
		abs:          abs,
	}
}

func compareSortKeys(a, b sortKey) int {
	if c := compareInt(a.rank, b.rank); c != 0 {
		return c
	}
	if c := compareInt(a.negOnPoint, b.negOnPoint); c != 0 {
		return c
	}
	if c := compareIntSlice(a.orderIndices, b.orderIndices); c != 0 {
		return c
	}
	if c := compareTagSlice(a.orderedAxes, b.orderedAxes); c != 0 {
		return c
	}
	if c := compareIntSlice(a.signs, b.signs); c != 0 {
		return c
	}
	if c := compareFloatSlice(a.abs, b.abs); c != 0 {
		return c
	}
	return 0
}

func signOf(v float64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func mathAbs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareIntSlice(a, b []int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareInt(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

func compareTagSlice(a, b []Tag) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return compareInt(len(a), len(b))
}

func compareFloatSlice(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return compareInt(len(a), len(b))
}

type axisRange struct{ min, max float64 }

// axisRanges computes, for every axis mentioned anywhere, the min and max
// value seen across all locations, treating an absent axis as 0.
func axisRanges(locations []NormalizedLocation) map[Tag]axisRange {
	tags := make(map[Tag]bool)
	for _, loc := range locations {
		for tag := range loc {
			tags[tag] = true
		}
	}
	ranges := make(map[Tag]axisRange, len(tags))
	for tag := range tags {
		lo, hi := 0.0, 0.0
		for _, loc := range locations {
			v := float64(loc[tag]) // 0 if absent
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		ranges[tag] = axisRange{min: lo, max: hi}
	}
	return ranges
}

// initialRegion builds the unrefined box support for a sorted master's
// location, per §4.3.
func initialRegion(loc NormalizedLocation, ranges map[Tag]axisRange) Support {
	region := make(Support, len(loc))
	for tag, v := range loc {
		r := ranges[tag]
		if v > 0 {
			region[tag] = AxisSupport{Lower: 0, Peak: v, Upper: NormalizedCoord(r.max)}
		} else {
			region[tag] = AxisSupport{Lower: NormalizedCoord(r.min), Peak: v, Upper: 0}
		}
	}
	return region
}

// refineRegion performs a single box-split of region against the earlier
// master's region other, mutating region in place, per §4.3.
func refineRegion(region, other Support) {
	for tag := range other {
		if _, ok := region[tag]; !ok {
			return // other's axes are not a subset of region's
		}
	}
	for tag, triple := range region {
		otherAxis, ok := other[tag]
		if !ok {
			return
		}
		v := float64(otherAxis.Peak)
		lower, peak, upper := float64(triple.Lower), float64(triple.Peak), float64(triple.Upper)
		if !(v == peak || (lower < v && v < upper)) {
			return // other is not relevant to region
		}
	}

	bestRatio := -1.0
	bestUpdates := make(map[Tag]AxisSupport)
	for tag, otherAxis := range other {
		val := float64(otherAxis.Peak)
		cur := region[tag]
		lower, locV, upper := float64(cur.Lower), float64(cur.Peak), float64(cur.Upper)

		var newLower, newUpper, ratio float64
		newLower, newUpper = lower, upper
		switch {
		case val < locV:
			newLower = val
			ratio = (val - locV) / (lower - locV)
		case locV < val:
			newUpper = val
			ratio = (val - locV) / (upper - locV)
		default:
			continue // val == locV: this axis cannot split
		}

		if ratio > bestRatio {
			bestRatio = ratio
			bestUpdates = make(map[Tag]AxisSupport)
		}
		if ratio == bestRatio {
			bestUpdates[tag] = AxisSupport{
				Lower: NormalizedCoord(newLower),
				Peak:  NormalizedCoord(locV),
				Upper: NormalizedCoord(newUpper),
			}
		}
	}

	for tag, upd := range bestUpdates {
		region[tag] = upd
	}
}
