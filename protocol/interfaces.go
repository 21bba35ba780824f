package protocol

import (
	"strconv"
	"time"
)

// NodeID identifies a node (Member or Aggregator) on the transport.
type NodeID = string

// MemberID identifies a Member within a session. Valid ids are 0..Members-1.
type MemberID int

// MemberNode returns the transport address of a Member.
func MemberNode(m MemberID) NodeID {
	return "member-" + strconv.Itoa(int(m))
}

// ReceiveFunc handles a payload delivered to a node.
type ReceiveFunc func(payload []byte, from NodeID)

// Transport moves opaque payloads between nodes.
// Delivery may be delayed, reordered or dropped.
type Transport interface {
	// Send queues payload for delivery from one node to another.
	Send(from, to NodeID, payload []byte) error

	// Register installs the receive handler of a node.
	Register(node NodeID, handler ReceiveFunc)
}

// Handle identifies a scheduled action so that it can be cancelled.
type Handle uint64

// Scheduler runs actions at virtual times.
// Actions run to completion one at a time and must not block.
type Scheduler interface {
	// Now returns the current virtual time.
	Now() time.Duration

	// ScheduleAt runs action at virtual time at on behalf of owner.
	ScheduleAt(at time.Duration, owner NodeID, action func()) Handle

	// Cancel prevents a pending action from running.
	// Returns false if the action already ran or was cancelled.
	Cancel(h Handle) bool
}

// ReadingSource supplies the reading a Member holds at the start of a round.
type ReadingSource interface {
	Reading(member MemberID, round int) int64
}

// ConstantReadings is a ReadingSource returning fixed readings per Member.
// Members without an entry read Default.
type ConstantReadings struct {
	Values  map[MemberID]int64
	Default int64
}

func (c ConstantReadings) Reading(member MemberID, _ int) int64 {
	if v, ok := c.Values[member]; ok {
		return v
	}
	return c.Default
}
