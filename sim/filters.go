package sim

import "github.com/flashbots/maskagg/protocol"

// DropReportsFrom returns a filter discarding the reports of the given members.
func DropReportsFrom(members ...protocol.MemberID) DropFilter {
	nodes := make(map[protocol.NodeID]bool, len(members))
	for _, m := range members {
		nodes[protocol.MemberNode(m)] = true
	}
	return func(from, _ protocol.NodeID, payload []byte) bool {
		if !nodes[from] {
			return false
		}
		env, err := protocol.UnmarshalEnvelope(payload)
		return err == nil && env.Kind == protocol.KindReport
	}
}

// DropOffsetsTo returns a filter discarding the offsets sent to the given
// members.
func DropOffsetsTo(members ...protocol.MemberID) DropFilter {
	nodes := make(map[protocol.NodeID]bool, len(members))
	for _, m := range members {
		nodes[protocol.MemberNode(m)] = true
	}
	return func(_, to protocol.NodeID, payload []byte) bool {
		if !nodes[to] {
			return false
		}
		env, err := protocol.UnmarshalEnvelope(payload)
		return err == nil && env.Kind == protocol.KindOffset
	}
}

// DropKind returns a filter discarding every message of a kind.
func DropKind(kind protocol.MessageKind) DropFilter {
	return func(_, _ protocol.NodeID, payload []byte) bool {
		env, err := protocol.UnmarshalEnvelope(payload)
		return err == nil && env.Kind == kind
	}
}
