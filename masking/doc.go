// Package masking provides the random masks used to blind metering readings.
//
// The package implements the primitives the aggregation protocol is built on:
//
//   - Bounded integer ranges for the peer-exchange masks and the optional
//     second-stage re-masks
//   - A seeded mask generator that draws independent values and vectors
//   - Per-node seed derivation (HKDF-SHA256) from a session seed, so that every
//     round is reproducible and no two nodes share a random stream
//   - Elementwise vector arithmetic for combining mask halves
//   - A ledger that tracks issued and consumed masks
//
// Note: the masks provide statistical blinding only. They are not a substitute for
// encryption and the generator is not a cryptographically secure source.
//
// # Ranges
//
// Two default ranges are used by the protocol:
//   - PeerMaskRange: [-20, 20], drawn by each Aggregator for its half of a channel
//   - RemaskRange: [50, 100), drawn by a Member when a value is blinded a second time
//
// # Streams
//
// A Generator owns its stream. Sessions derive one seed per (round, node) with
// DeriveSeed and never share generators across nodes.
package masking
