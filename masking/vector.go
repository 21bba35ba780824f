package masking

import (
	"fmt"
	"slices"
)

// Vector is an ordered sequence of masks or masked values, one entry per Member
// of a channel in member index order.
type Vector []int64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	return slices.Clone(v)
}

// Equal reports whether both vectors hold the same values in the same order.
func (v Vector) Equal(o Vector) bool {
	return slices.Equal(v, o)
}

// Sum returns the sum of all entries.
func (v Vector) Sum() int64 {
	var s int64
	for _, x := range v {
		s += x
	}
	return s
}

// At returns the entry at index i, or an error if i is out of bounds.
func (v Vector) At(i int) (int64, error) {
	if i < 0 || i >= len(v) {
		return 0, fmt.Errorf("index %d out of bounds for vector of length %d", i, len(v))
	}
	return v[i], nil
}

// AddInplace performs elementwise addition in-place: l[i] = l[i] + r[i].
func AddInplace(l Vector, r Vector) error {
	if len(l) != len(r) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(l), len(r))
	}
	for i := range l {
		l[i] += r[i]
	}
	return nil
}

// SubInplace performs elementwise subtraction in-place: l[i] = l[i] - r[i].
func SubInplace(l Vector, r Vector) error {
	if len(l) != len(r) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(l), len(r))
	}
	for i := range l {
		l[i] -= r[i]
	}
	return nil
}

// Add returns the elementwise sum of two vectors without modifying either.
func Add(l Vector, r Vector) (Vector, error) {
	res := l.Clone()
	if err := AddInplace(res, r); err != nil {
		return nil, err
	}
	return res, nil
}

// Sub returns the elementwise difference l - r without modifying either.
func Sub(l Vector, r Vector) (Vector, error) {
	res := l.Clone()
	if err := SubInplace(res, r); err != nil {
		return nil, err
	}
	return res, nil
}
