package masking

import (
	"errors"
	"fmt"
)

var (
	ErrMaskReissued   = errors.New("mask already issued")
	ErrMaskNotIssued  = errors.New("mask was never issued")
	ErrMaskReused     = errors.New("mask already consumed on another channel")
	ErrLedgerMismatch = errors.New("ledger owner mismatch")
)

// Tag identifies a single mask.
type Tag struct {
	Owner string `json:"owner"`
	Round int    `json:"round"`
	Peer  string `json:"peer"`
	Index int    `json:"index"`
}

func (t Tag) String() string {
	return fmt.Sprintf("%s/%d/%s/%d", t.Owner, t.Round, t.Peer, t.Index)
}

// Ledger records the masks a node has issued and the channel each one was
// consumed on. Not safe for concurrent use.
type Ledger struct {
	owner    string
	issued   map[Tag]struct{}
	consumed map[Tag]string
}

// NewLedger creates an empty ledger for masks owned by owner.
func NewLedger(owner string) *Ledger {
	return &Ledger{
		owner:    owner,
		issued:   make(map[Tag]struct{}),
		consumed: make(map[Tag]string),
	}
}

// Issue records a freshly generated mask. Each tag can be issued exactly once.
func (l *Ledger) Issue(tag Tag) error {
	if tag.Owner != l.owner {
		return fmt.Errorf("%w: %s does not own %s", ErrLedgerMismatch, l.owner, tag)
	}
	if _, found := l.issued[tag]; found {
		return fmt.Errorf("%w: %s", ErrMaskReissued, tag)
	}
	l.issued[tag] = struct{}{}
	return nil
}

// IssueVector records the masks of a whole vector drawn for peer in round.
func (l *Ledger) IssueVector(round int, peer string, n int) error {
	for i := 0; i < n; i++ {
		if err := l.Issue(Tag{Owner: l.owner, Round: round, Peer: peer, Index: i}); err != nil {
			return err
		}
	}
	return nil
}

// Consume marks a mask as folded into a value sent on channel.
// Consuming again on the same channel is a no-op.
func (l *Ledger) Consume(tag Tag, channel string) error {
	if _, found := l.issued[tag]; !found {
		return fmt.Errorf("%w: %s", ErrMaskNotIssued, tag)
	}
	if prev, found := l.consumed[tag]; found && prev != channel {
		return fmt.Errorf("%w: %s consumed on %s, requested %s", ErrMaskReused, tag, prev, channel)
	}
	l.consumed[tag] = channel
	return nil
}

// IsIssued reports whether tag has been issued.
func (l *Ledger) IsIssued(tag Tag) bool {
	_, found := l.issued[tag]
	return found
}

// ConsumedOn returns the channel a mask was consumed on.
func (l *Ledger) ConsumedOn(tag Tag) (string, bool) {
	ch, found := l.consumed[tag]
	return ch, found
}

// Forget drops every entry for rounds before round.
func (l *Ledger) Forget(round int) {
	for tag := range l.issued {
		if tag.Round < round {
			delete(l.issued, tag)
			delete(l.consumed, tag)
		}
	}
}

// Len returns the number of issued masks currently tracked.
func (l *Ledger) Len() int {
	return len(l.issued)
}
