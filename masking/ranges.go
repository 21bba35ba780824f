package masking

import (
	"errors"
	"fmt"
	"math"
)

// ErrRangeOverflow is returned when range arithmetic leaves int64.
var ErrRangeOverflow = errors.New("range overflows int64")

// Range is a bounded interval of mask or reading values.
// High is excluded unless Inclusive is set.
type Range struct {
	Low       int64 `json:"low" yaml:"low"`
	High      int64 `json:"high" yaml:"high"`
	Inclusive bool  `json:"inclusive,omitempty" yaml:"inclusive,omitempty"`
}

var (
	// PeerMaskRange bounds the masks Aggregators exchange with their peer.
	PeerMaskRange = Range{Low: -20, High: 20, Inclusive: true}

	// RemaskRange bounds the second-stage re-mask drawn by Members.
	RemaskRange = Range{Low: 50, High: 100}
)

// Max returns the largest value inside the range.
func (r Range) Max() int64 {
	if r.Inclusive {
		return r.High
	}
	return r.High - 1
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Low && v <= r.Max()
}

// Size returns the number of distinct values in the range.
func (r Range) Size() uint64 {
	if r.Max() < r.Low {
		return 0
	}
	return uint64(r.Max()-r.Low) + 1
}

// Validate checks that the range holds at least one value and that
// Max-Low fits in an int64.
func (r Range) Validate() error {
	if !r.Inclusive && r.High == math.MinInt64 {
		return fmt.Errorf("empty range %s", r)
	}
	if r.Max() < r.Low {
		return fmt.Errorf("empty range %s", r)
	}
	if r.Low < 0 && r.Max() > math.MaxInt64+r.Low {
		return fmt.Errorf("range %s: %w", r, ErrRangeOverflow)
	}
	return nil
}

// Plus returns the range of a+b for a in r and b in o. Both ranges must
// have passed CheckedPlus.
func (r Range) Plus(o Range) Range {
	return Range{Low: r.Low + o.Low, High: r.Max() + o.Max(), Inclusive: true}
}

// CheckedPlus is Plus that fails when either bound or the resulting span
// leaves int64.
func (r Range) CheckedPlus(o Range) (Range, error) {
	low, lowOK := addInt64(r.Low, o.Low)
	high, highOK := addInt64(r.Max(), o.Max())
	if !lowOK || !highOK {
		return Range{}, fmt.Errorf("%s + %s: %w", r, o, ErrRangeOverflow)
	}
	sum := Range{Low: low, High: high, Inclusive: true}
	if err := sum.Validate(); err != nil {
		return Range{}, fmt.Errorf("%s + %s: %w", r, o, err)
	}
	return sum, nil
}

func addInt64(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// Mean returns the expected value of a uniform draw from the range.
func (r Range) Mean() float64 {
	return (float64(r.Low) + float64(r.Max())) / 2
}

func (r Range) String() string {
	if r.Inclusive {
		return fmt.Sprintf("[%d, %d]", r.Low, r.High)
	}
	return fmt.Sprintf("[%d, %d)", r.Low, r.High)
}
