package protocol

import (
	"math"
	"testing"

	"github.com/flashbots/maskagg/masking"
	"github.com/stretchr/testify/require"
)

func TestFeasibleReadings(t *testing.T) {
	peerRange := masking.PeerMaskRange

	// Member 3 of the example round: reading 5, own half 0, peer half 20.
	candidates := FeasibleReadings(25, 0, peerRange, masking.Range{})
	require.Len(t, candidates, int(peerRange.Size()))
	require.Contains(t, candidates, int64(5))

	seen := make(map[int64]bool)
	for _, c := range candidates {
		require.False(t, seen[c], "duplicate candidate %d", c)
		seen[c] = true
	}
	require.Equal(t, int64(5), candidates[0])
	require.Equal(t, int64(45), candidates[len(candidates)-1])

	// Known reading bounds narrow the candidates.
	narrowed := FeasibleReadings(25, 0, peerRange, masking.Range{Low: 0, High: 10, Inclusive: true})
	require.Equal(t, []int64{5, 6, 7, 8, 9, 10}, narrowed)
}

func TestFeasibleReadingsAtInt64Bounds(t *testing.T) {
	peerRange := masking.Range{Low: math.MinInt64, High: math.MinInt64 + 2, Inclusive: true}

	candidates := FeasibleReadings(0, 0, peerRange, masking.Range{})
	require.Len(t, candidates, 3)
	require.Equal(t, []int64{math.MaxInt64 - 1, math.MaxInt64}, candidates[:2])

	narrowed := FeasibleReadings(-1, 0, peerRange, masking.Range{Low: math.MaxInt64 - 1, High: math.MaxInt64, Inclusive: true})
	require.Equal(t, []int64{math.MaxInt64 - 1, math.MaxInt64}, narrowed)

	require.Nil(t, FeasibleReadings(0, 0, masking.Range{Low: 1, High: 1}, masking.Range{}))
}

func TestSingleAggregatorViewIsUnderdetermined(t *testing.T) {
	gen := masking.NewGenerator([masking.SeedSize]byte{7})
	peerRange := masking.PeerMaskRange

	for i := 0; i < 200; i++ {
		reading := gen.Draw(masking.Range{Low: 0, High: 1000})
		own := gen.Draw(peerRange)
		peer := gen.Draw(peerRange)
		observed := reading + own + peer

		candidates := FeasibleReadings(observed, own, peerRange, masking.Range{})
		require.Contains(t, candidates, reading)

		// Another reading with a different peer half yields the same view.
		alt := peer - 1
		if !peerRange.Contains(alt) {
			alt = peer + 1
		}
		other := observed - own - alt
		require.NotEqual(t, reading, other)
		require.Contains(t, candidates, other)
	}
}
