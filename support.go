// SPDX-License-Identifier: Unlicense OR BSD-3-Clause

package varmodel

// AxisSupport is the box-shaped influence region of one axis of a support:
// influence rises linearly from 0 at Lower to 1 at Peak, then falls
// linearly back to 0 at Upper.
type AxisSupport struct {
	Lower, Peak, Upper NormalizedCoord
}

// Support is a master's support region: a mapping from axis tag to its
// AxisSupport. Axes absent from a Support are unconstrained (their scalar
// contribution is always 1).
type Support map[Tag]AxisSupport

// IsEmpty reports whether s constrains no axis. The empty support always
// yields a scalar of 1.
func (s Support) IsEmpty() bool { return len(s) == 0 }

// SupportScalar computes the blend weight, in [0, 1], that support
// contributes at loc.
func SupportScalar(loc NormalizedLocation, support Support) float64 {
	scalar := 1.0
	for tag, axis := range support {
		lower, peak, upper := float64(axis.Lower), float64(axis.Peak), float64(axis.Upper)

		if peak == 0 {
			continue // master is on default along this axis
		}
		if lower > peak || peak > upper {
			continue // degenerate support: no attenuation
		}
		if lower < 0 && upper > 0 {
			continue // straddles default: cannot be validly attenuated
		}

		v := float64(loc[tag])
		if v == peak {
			continue
		}
		if v <= lower || v >= upper {
			return 0
		}
		if v < peak {
			scalar *= (v - lower) / (peak - lower)
		} else {
			scalar *= (v - upper) / (peak - upper)
		}
	}
	return scalar
}
