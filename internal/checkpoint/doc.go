// Package checkpoint stores settled analysis reports so that an
// interrupted batch scan can resume without re-analysing files it has
// already judged.
//
// Reports are keyed by engine.Identity (path, size and modification
// time), so a file that changes on disk is analysed again. Two stores
// implement engine.Store:
//
//   - MemoryStore keeps reports in a map for the lifetime of the process.
//     The MCP server uses it to answer repeated questions about the same
//     file.
//   - FileStore keeps one compressed CBOR record per file under a session
//     directory, where the session is derived from the scan parameters
//     (see SessionID).
//
// # Record format
//
// A record is a deterministic CBOR encoding of the identity and the
// report, compressed with zstd. The record file name is the BLAKE3 hash
// of the identity key, so lookups never list the directory.
//
// # Thread Safety
//
// Both stores are safe for concurrent use. FileStore writes each record to
// a temporary file and renames it into place, so a crash never leaves a
// half-written record behind.
package checkpoint
