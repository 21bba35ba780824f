package masking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeBounds(t *testing.T) {
	require.True(t, PeerMaskRange.Contains(-20))
	require.True(t, PeerMaskRange.Contains(20))
	require.False(t, PeerMaskRange.Contains(21))
	require.Equal(t, uint64(41), PeerMaskRange.Size())

	require.True(t, RemaskRange.Contains(50))
	require.True(t, RemaskRange.Contains(99))
	require.False(t, RemaskRange.Contains(100))
	require.Equal(t, uint64(50), RemaskRange.Size())
	require.InDelta(t, 74.5, RemaskRange.Mean(), 1e-9)

	require.Error(t, Range{Low: 5, High: 5}.Validate())
	require.NoError(t, Range{Low: 5, High: 5, Inclusive: true}.Validate())

	combined := PeerMaskRange.Plus(PeerMaskRange)
	require.Equal(t, Range{Low: -40, High: 40, Inclusive: true}, combined)
}

func TestRangeOverflow(t *testing.T) {
	require.ErrorIs(t, Range{Low: math.MinInt64, High: math.MaxInt64, Inclusive: true}.Validate(), ErrRangeOverflow)
	require.ErrorIs(t, Range{Low: -1, High: math.MaxInt64, Inclusive: true}.Validate(), ErrRangeOverflow)
	require.Error(t, Range{Low: math.MinInt64, High: math.MinInt64}.Validate())

	full := Range{Low: 0, High: math.MaxInt64, Inclusive: true}
	require.NoError(t, full.Validate())
	require.Equal(t, uint64(1)<<63, full.Size())

	_, err := full.CheckedPlus(PeerMaskRange)
	require.ErrorIs(t, err, ErrRangeOverflow)

	_, err = Range{Low: math.MinInt64 + 10, High: 0}.CheckedPlus(PeerMaskRange)
	require.ErrorIs(t, err, ErrRangeOverflow)

	sum, err := Range{Low: 0, High: 100}.CheckedPlus(PeerMaskRange)
	require.NoError(t, err)
	require.Equal(t, Range{Low: -20, High: 119, Inclusive: true}, sum)
}

func TestGeneratorCoversRange(t *testing.T) {
	g, err := NewDerivedGenerator([]byte("coverage"), 1, "agg-A")
	require.NoError(t, err)

	r := Range{Low: -2, High: 2, Inclusive: true}
	seen := make(map[int64]int)
	for _, v := range g.DrawVector(2000, r) {
		require.True(t, r.Contains(v))
		seen[v]++
	}
	require.Len(t, seen, 5)
}

func TestDeriveSeedSeparatesStreams(t *testing.T) {
	sessionSeed := []byte("session")

	seedA, err := DeriveSeed(sessionSeed, 1, "agg-A")
	require.NoError(t, err)
	seedB, err := DeriveSeed(sessionSeed, 1, "agg-B")
	require.NoError(t, err)
	seedA2, err := DeriveSeed(sessionSeed, 2, "agg-A")
	require.NoError(t, err)
	again, err := DeriveSeed(sessionSeed, 1, "agg-A")
	require.NoError(t, err)

	require.NotEqual(t, seedA, seedB)
	require.NotEqual(t, seedA, seedA2)
	require.Equal(t, seedA, again)

	_, err = DeriveSeed(nil, 1, "agg-A")
	require.Error(t, err)
}

func TestGeneratorsDoNotInterfere(t *testing.T) {
	seed, err := DeriveSeed([]byte("session"), 1, "agg-A")
	require.NoError(t, err)

	alone := NewGenerator(seed).DrawVector(16, PeerMaskRange)

	// Interleaving draws from an unrelated generator must not change the stream.
	g := NewGenerator(seed)
	other, err := NewDerivedGenerator([]byte("other-session"), 1, "agg-A")
	require.NoError(t, err)

	interleaved := make(Vector, 0, 16)
	for i := 0; i < 16; i++ {
		other.Draw(RemaskRange)
		interleaved = append(interleaved, g.Draw(PeerMaskRange))
	}
	require.Equal(t, alone, interleaved)
}
