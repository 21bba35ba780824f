// Package protocol implements the roles of a privacy-preserving metering
// aggregation protocol, in which Aggregators learn only the sums of the
// readings reported by their Members.
//
// # Architecture and Workflow
//
// The protocol operates with two roles per channel:
//
//  1. Members: Leaf nodes holding one scalar reading per round. A Member never
//     sends its reading in clear; it adds the offset received from its
//     Aggregator (and optionally a second-stage re-mask) and reports only the
//     blinded value.
//
//  2. Aggregators: Grouped into channels of two peers. Each peer draws one mask
//     half per channel member, the peers exchange halves, and both compute the
//     same combined mask. Each Aggregator distributes the combined mask entries
//     to the Members it is assigned, collects their blinded reports and removes
//     the combined masks in aggregate to obtain the group sum.
//
// A channel may also hold a single Aggregator, which then masks with its own half
// only.
//
// # Rounds and Phases
//
// Every round runs some of three phases, selected by its SessionType:
//
//   - Exchange: peers swap mask halves (MaskExchange envelopes).
//   - Distribute: Aggregators send one offset per Member (Offset envelopes).
//   - Collect: Members report blinded values upstream (Report envelopes).
//
// Roles never talk to each other directly. They send bytes through a Transport
// and are driven by phase entry actions scheduled by a Scheduler, both of which
// are provided by the session package (backed by the sim package).
//
// # Wire Format
//
// Numeric payloads are encoded as "<n>$<v0>*<v1>*...*<v(n-1)>*", see
// EncodeVector and DecodeVector. Payloads travel inside JSON Envelopes.
//
// # Privacy
//
// Masks are drawn from small bounded ranges and are not encryption. An
// Aggregator that only knows its own mask half cannot tell apart the readings
// listed by FeasibleReadings; anything beyond that is out of scope.
package protocol
