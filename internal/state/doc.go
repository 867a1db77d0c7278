// Package state provides the persisted key-value layer dayroll reconciles
// against.
//
// A Store reads a logical key by scanning an ordered list of namespaces
// (canonical first, then legacy names written by older versions) and always
// writes to the canonical namespace, so storage-location drift heals itself
// on the first write. Failures on an individual namespace are logged and
// treated as "absent"; reads never fail.
//
// Backends:
//   - MemoryBackend: process-local maps, used in tests and one-shot runs
//   - JSONBackend: one <namespace>.json file per namespace, atomic rename writes
//   - SQLiteBackend: a single kv table (modernc.org/sqlite)
//   - NATSBackend: one JetStream key-value bucket per namespace
package state
