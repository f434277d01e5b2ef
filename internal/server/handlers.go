package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/engine"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
	"github.com/ironsheep/image-integrity-mcp/internal/validate"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_validate", "image_scan").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Resolves optional levels against the server configuration
//  3. Runs the analyzer with only the stages the tool needs
//  4. Returns the relevant part of the report or an error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Structure
	case "image_parse_structure":
		return s.handleParseStructure(ctx, args)
	case "image_validate":
		return s.handleValidate(ctx, args)

	// Pixel analysis
	case "image_check_visual":
		return s.handleCheckVisual(ctx, args)
	case "image_steganalysis":
		return s.handleSteganalysis(ctx, args)

	// Full reports
	case "image_analyze":
		return s.handleAnalyze(ctx, args)
	case "image_scan":
		return s.handleScan(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// parseLevel resolves an optional level argument, falling back to def.
func parseLevel(name string, def config.Level) (config.Level, error) {
	if name == "" {
		return def, nil
	}
	l, err := config.ParseLevel(name)
	if err != nil {
		return def, err
	}
	return l, nil
}

// analyze runs cfg's stages on path. Rejections are returned as reports,
// not errors; read failures and cancellation are errors.
func (s *Server) analyze(ctx context.Context, path string, cfg config.Config) (*engine.Report, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	rep, err := s.analyzer.WithConfig(cfg).Analyze(ctx, path)
	var rej *engine.RejectedError
	if err != nil && !errors.As(err, &rej) {
		return nil, err
	}
	return rep, nil
}

// === Structure Handlers ===

type parseStructureArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleParseStructure(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a parseStructureArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if limit := s.analyzer.Config().Limits.MaxFileBytes; limit > 0 && info.Size() > limit {
		return nil, &engine.RejectedError{Path: a.Path, Limit: "file_bytes", Value: info.Size(), Max: limit}
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return format.Parse(data, format.Detect(a.Path, data)), nil
}

type validateArgs struct {
	Path        string `json:"path"`
	Sensitivity string `json:"sensitivity"`
	IgnoreEOF   bool   `json:"ignore_eof"`
}

type validateResult struct {
	Path       string            `json:"path"`
	Format     format.Format     `json:"format"`
	Status     engine.Status     `json:"status"`
	Validation *validate.Verdict `json:"validation,omitempty"`
	Diagnosis  engine.Diagnosis  `json:"diagnosis,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

func (s *Server) handleValidate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a validateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	cfg := s.analyzer.Config()
	level, err := parseLevel(a.Sensitivity, cfg.Validation.Sensitivity)
	if err != nil {
		return nil, err
	}
	cfg.Validation.Sensitivity = level
	cfg.Validation.IgnoreEOF = cfg.Validation.IgnoreEOF || a.IgnoreEOF
	cfg.Visual.Enabled = false
	cfg.Steganalysis.Enabled = false

	rep, err := s.analyze(ctx, a.Path, cfg)
	if err != nil {
		return nil, err
	}
	return validateResult{
		Path:       rep.Path(),
		Format:     rep.Artifact.Format,
		Status:     rep.Status,
		Validation: rep.Validation,
		Diagnosis:  rep.Diagnosis,
		Reason:     rep.Reason,
	}, nil
}

// === Pixel Analysis Handlers ===

type strictnessArgs struct {
	Path       string `json:"path"`
	Strictness string `json:"strictness"`
}

func (s *Server) handleCheckVisual(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a strictnessArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	cfg := s.analyzer.Config()
	level, err := parseLevel(a.Strictness, cfg.Visual.Strictness)
	if err != nil {
		return nil, err
	}
	cfg.Visual.Enabled = true
	cfg.Visual.Strictness = level
	cfg.Steganalysis.Enabled = false

	rep, err := s.analyze(ctx, a.Path, cfg)
	if err != nil {
		return nil, err
	}
	if rep.Visual == nil {
		return nil, fmt.Errorf("visual check unavailable for %s: %s", a.Path, rep.Reason)
	}
	return rep.Visual, nil
}

func (s *Server) handleSteganalysis(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a strictnessArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	cfg := s.analyzer.Config()
	level, err := parseLevel(a.Strictness, cfg.Steganalysis.Strictness)
	if err != nil {
		return nil, err
	}
	cfg.Steganalysis.Enabled = true
	cfg.Steganalysis.Strictness = level
	cfg.Visual.Enabled = false

	rep, err := s.analyze(ctx, a.Path, cfg)
	if err != nil {
		return nil, err
	}
	if rep.Steganalysis == nil {
		return nil, fmt.Errorf("steganalysis unavailable for %s: %s", a.Path, rep.Reason)
	}
	return rep.Steganalysis, nil
}

// === Full Report Handlers ===

type analyzeArgs struct {
	Path        string `json:"path"`
	Sensitivity string `json:"sensitivity"`
	Strictness  string `json:"strictness"`
}

func (s *Server) handleAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}

	// Reports for the server's own configuration are remembered per file
	// version; overridden levels always run fresh.
	if a.Sensitivity == "" && a.Strictness == "" {
		return s.analyzeRemembered(ctx, a.Path)
	}

	cfg := s.analyzer.Config()
	sens, err := parseLevel(a.Sensitivity, cfg.Validation.Sensitivity)
	if err != nil {
		return nil, err
	}
	strict, err := parseLevel(a.Strictness, cfg.Steganalysis.Strictness)
	if err != nil {
		return nil, err
	}
	cfg.Validation.Sensitivity = sens
	cfg.Visual.Strictness = strict
	cfg.Steganalysis.Strictness = strict
	return s.analyze(ctx, a.Path, cfg)
}

func (s *Server) analyzeRemembered(ctx context.Context, path string) (*engine.Report, error) {
	id, err := engine.IdentityOf(path)
	if err != nil {
		return nil, err
	}
	if rep, ok, _ := s.reports.Get(ctx, id); ok {
		return rep, nil
	}
	rep, err := s.analyze(ctx, path, s.analyzer.Config())
	if err != nil {
		return nil, err
	}
	if rep.Final() {
		_ = s.reports.Put(ctx, id, rep)
	}
	return rep, nil
}

type scanArgs struct {
	Path      string   `json:"path"`
	Formats   []string `json:"formats"`
	Recursive *bool    `json:"recursive"`
	Workers   int      `json:"workers"`
}

// scanEntry is the short form of a flagged report.
type scanEntry struct {
	Path    string        `json:"path"`
	Status  engine.Status `json:"status"`
	Summary string        `json:"summary"`
}

type scanResult struct {
	Root    string           `json:"root"`
	Stats   engine.ScanStats `json:"stats"`
	Flagged []scanEntry      `json:"flagged"`
}

func (s *Server) handleScan(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a scanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}

	cfg := s.analyzer.Config()
	names := a.Formats
	if len(names) == 0 {
		names = cfg.Scan.Formats
	}
	formats, err := engine.ParseFormats(names)
	if err != nil {
		return nil, err
	}
	recursive := cfg.Scan.Recursive
	if a.Recursive != nil {
		recursive = *a.Recursive
	}
	workers := cfg.Scan.Workers
	if a.Workers > 0 {
		workers = a.Workers
	}

	paths, err := engine.Discover(a.Path, formats, recursive)
	if err != nil {
		return nil, err
	}

	res := scanResult{Root: a.Path, Flagged: []scanEntry{}}
	stats, err := engine.Scan(ctx, paths, engine.ScanOptions{
		Workers:  workers,
		Analyzer: s.analyzer,
		Store:    s.reports,
	}, func(rep *engine.Report) {
		if rep.Status == engine.StatusComplete && !rep.Corrupt() && !rep.Suspicious() {
			return
		}
		res.Flagged = append(res.Flagged, scanEntry{Path: rep.Path(), Status: rep.Status, Summary: rep.Summary()})
	})
	if err != nil {
		log.Printf("Scan of %s interrupted: %v", a.Path, err)
		return nil, err
	}
	sort.Slice(res.Flagged, func(i, j int) bool { return res.Flagged[i].Path < res.Flagged[j].Path })
	res.Stats = stats
	return res, nil
}
