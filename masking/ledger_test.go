package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedgerIssueOnce(t *testing.T) {
	l := NewLedger("agg-A")
	tag := Tag{Owner: "agg-A", Round: 1, Peer: "agg-B", Index: 2}

	require.NoError(t, l.Issue(tag))
	require.ErrorIs(t, l.Issue(tag), ErrMaskReissued)

	// Same index in another round or for another peer is a different mask
	require.NoError(t, l.Issue(Tag{Owner: "agg-A", Round: 2, Peer: "agg-B", Index: 2}))
	require.NoError(t, l.Issue(Tag{Owner: "agg-A", Round: 1, Peer: "agg-C", Index: 2}))

	require.ErrorIs(t, l.Issue(Tag{Owner: "agg-B", Round: 1, Peer: "agg-A", Index: 0}), ErrLedgerMismatch)
}

func TestLedgerConsume(t *testing.T) {
	l := NewLedger("agg-A")
	require.NoError(t, l.IssueVector(1, "agg-B", 4))
	require.Equal(t, 4, l.Len())

	tag := Tag{Owner: "agg-A", Round: 1, Peer: "agg-B", Index: 3}
	require.NoError(t, l.Consume(tag, "chan-0"))
	require.NoError(t, l.Consume(tag, "chan-0"))
	require.ErrorIs(t, l.Consume(tag, "chan-1"), ErrMaskReused)

	ch, found := l.ConsumedOn(tag)
	require.True(t, found)
	require.Equal(t, "chan-0", ch)

	require.ErrorIs(t, l.Consume(Tag{Owner: "agg-A", Round: 1, Peer: "agg-B", Index: 4}, "chan-0"), ErrMaskNotIssued)
	require.ErrorIs(t, l.IssueVector(1, "agg-B", 1), ErrMaskReissued)
}

func TestLedgerForget(t *testing.T) {
	l := NewLedger("agg-A")
	require.NoError(t, l.IssueVector(1, "agg-B", 2))
	require.NoError(t, l.IssueVector(2, "agg-B", 2))

	l.Forget(2)
	require.Equal(t, 2, l.Len())
	require.False(t, l.IsIssued(Tag{Owner: "agg-A", Round: 1, Peer: "agg-B", Index: 0}))
	require.True(t, l.IsIssued(Tag{Owner: "agg-A", Round: 2, Peer: "agg-B", Index: 0}))
}
