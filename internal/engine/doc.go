// Package engine runs the integrity and steganalysis pipeline over image
// files.
//
// An Analyzer is built once from a config.Config and is safe for
// concurrent use. For each file it:
//
//   - enforces the resource limits (file size, declared and decoded
//     dimensions), rejecting the file before any heavy work
//   - parses the container structure (format.Parse)
//   - decodes pixels with the truncation-tolerant codec
//   - runs structural validation and visual detection concurrently
//   - runs the steganalysis detector bank when pixels were recovered
//
// The result is a Report keyed by path. A Pool fans paths out over a
// fixed number of workers, and Scan adds a checkpoint Store so that a
// resumed batch skips files whose verdict is already known.
package engine
