// Package eventstore persists scheduled-deletion records.
//
// It is the durability boundary of the scheduling engine: every state
// transition is written through Save before the engine performs the side
// effect that depends on it, so a crash mid-tick leaves the store in a state
// the next poll can recover from.
//
// Drivers:
//   - "memory": process-local, for tests and throwaway runs
//   - "file":   dependency-free file backend (snapshot + JSONL journal)
//   - "sqlite": SQLite database file (optional build tag)
package eventstore
