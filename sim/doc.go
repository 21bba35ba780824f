// Package sim provides a deterministic discrete-event engine and a simulated
// network for running aggregation sessions in virtual time.
//
// The Engine implements protocol.Scheduler and the Network implements
// protocol.Transport. Both are single-threaded: every action runs to
// completion before the next one starts, so roles need no locking.
package sim
