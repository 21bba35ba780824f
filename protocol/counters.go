package protocol

import (
	"errors"

	"go.uber.org/atomic"
)

// Counters tracks message outcomes of one role.
type Counters struct {
	Sent         atomic.Int64
	Received     atomic.Int64
	Late         atomic.Int64
	Dropped      atomic.Int64
	FormatErrors atomic.Int64
	RangeErrors  atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Sent         int64 `json:"sent"`
	Received     int64 `json:"received"`
	Late         int64 `json:"late"`
	Dropped      int64 `json:"dropped"`
	FormatErrors int64 `json:"format_errors"`
	RangeErrors  int64 `json:"range_errors"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Sent:         c.Sent.Load(),
		Received:     c.Received.Load(),
		Late:         c.Late.Load(),
		Dropped:      c.Dropped.Load(),
		FormatErrors: c.FormatErrors.Load(),
		RangeErrors:  c.RangeErrors.Load(),
	}
}

// Reset zeroes all counters and returns their previous values.
func (c *Counters) Reset() CounterSnapshot {
	return CounterSnapshot{
		Sent:         c.Sent.Swap(0),
		Received:     c.Received.Swap(0),
		Late:         c.Late.Swap(0),
		Dropped:      c.Dropped.Swap(0),
		FormatErrors: c.FormatErrors.Swap(0),
		RangeErrors:  c.RangeErrors.Swap(0),
	}
}

// Add returns the element-wise sum of two snapshots.
func (s CounterSnapshot) Add(o CounterSnapshot) CounterSnapshot {
	return CounterSnapshot{
		Sent:         s.Sent + o.Sent,
		Received:     s.Received + o.Received,
		Late:         s.Late + o.Late,
		Dropped:      s.Dropped + o.Dropped,
		FormatErrors: s.FormatErrors + o.FormatErrors,
		RangeErrors:  s.RangeErrors + o.RangeErrors,
	}
}

// countError increments the counter matching err's class.
func (c *Counters) countError(err error) {
	var formatErr *FormatError
	var rangeErr *RangeError
	switch {
	case errors.As(err, &formatErr):
		c.FormatErrors.Inc()
	case errors.As(err, &rangeErr):
		c.RangeErrors.Inc()
	default:
		c.Dropped.Inc()
	}
}
