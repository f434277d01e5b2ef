// Package server implements the MCP (Model Context Protocol) server for image integrity tools.
//
// This package provides a JSON-RPC 2.0 server that exposes structural validation,
// visual corruption detection and steganalysis through the MCP protocol, so that
// MCP-compatible clients can check whether image files are damaged or carry
// hidden payloads.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Structure:
//   - image_parse_structure: List segments or chunks and parser anomalies
//   - image_validate: Structural verdict at a chosen sensitivity
//
// Pixel analysis:
//   - image_check_visual: Uniform gray or black region check
//   - image_steganalysis: Detector bank and aggregated suspicion
//
// Full reports:
//   - image_analyze: Every stage for one file, with a diagnosis
//   - image_scan: Batch run over a directory
//
// # Report Memory
//
// Reports produced with the server's own configuration are kept in a
// checkpoint.MemoryStore keyed by file path, size and modification time.
// Repeated image_analyze calls and rescans reuse them until a file changes.
// Calls that override a level always run fresh.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A file refused by a resource limit is not an error: the report carries
// status "rejected" and the reason.
//
// # Usage
//
//	srv := server.New(engine.NewAnalyzer(cfg))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
