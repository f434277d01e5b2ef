// Package format parses the structural layout of image containers without
// decoding pixel data.
//
// Two container families are understood byte for byte:
//
//   - JPEG, a marker-segmented format: SOI, a run of length-prefixed
//     segments, entropy-coded scan data, EOI.
//   - PNG, a chunked format: an 8-byte signature followed by chunks of
//     length, type, payload and CRC-32.
//
// Every other format is recognised by extension or magic bytes only and
// yields an empty atom list with an "unsupported-format" finding; callers
// fall back to codec-only validation for those.
//
// # Error Handling
//
// Parse never returns an error and never panics on malformed input.
// Truncation, bad signatures, checksum mismatches and stray bytes are all
// recorded as Finding values on the Result, in byte order, for the
// structural validator to interpret. A buffer that ends in the middle of
// a segment or chunk stops the walk and sets Result.Truncated rather
// than discarding the atoms already read.
//
// # Thread Safety
//
// Parse only reads its input and allocates a fresh Result, so it may be
// called concurrently on shared buffers.
package format
