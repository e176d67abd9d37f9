// SPDX-License-Identifier: Unlicense OR BSD-3-Clause

package varmodel

import "errors"

// Sentinel error kinds. Callers should use errors.Is against these, since
// every returned error wraps one of them with call-site detail via %w.
var (
	// ErrInvalidAxis is returned when an axis's min/default/max do not
	// satisfy min <= default <= max.
	ErrInvalidAxis = errors.New("varmodel: invalid axis bounds")

	// ErrLengthMismatch is returned when a values slice does not match
	// the model's master count, or a values/scalars pair has unequal
	// lengths.
	ErrLengthMismatch = errors.New("varmodel: length mismatch")

	// ErrDuplicateMaster is returned when two original master locations
	// are equal after sparsification.
	ErrDuplicateMaster = errors.New("varmodel: duplicate master location")

	// ErrOutOfRange is returned when a normalized coordinate outside
	// [-1, 1] is supplied to the constructor.
	ErrOutOfRange = errors.New("varmodel: coordinate out of range")
)
