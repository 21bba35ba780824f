package protocol

import (
	"github.com/flashbots/maskagg/masking"
)

// FeasibleReadings lists the readings consistent with what one Aggregator
// observes for a Member: the blinded value and its own mask half. Every value
// the peer half could take yields a distinct candidate, so the true reading is
// one of peerRange.Size() equally likely values.
//
// Candidates outside readingRange are excluded unless readingRange is empty,
// as the zero Range is. An invalid peerRange yields no candidates.
func FeasibleReadings(observed, ownHalf int64, peerRange, readingRange masking.Range) []int64 {
	if peerRange.Validate() != nil {
		return nil
	}
	filter := readingRange.Validate() == nil
	readings := make([]int64, 0, min(peerRange.Size(), maxPrealloc))
	for p := peerRange.Max(); ; p-- {
		r := observed - ownHalf - p
		if !filter || readingRange.Contains(r) {
			readings = append(readings, r)
		}
		if p == peerRange.Low {
			break
		}
	}
	return readings
}

const maxPrealloc = 1 << 16
