package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// levelProperty describes an optional low/medium/high argument.
func levelProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"low", "medium", "high"},
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Structure
		{
			Name:        "image_parse_structure",
			Description: "Parse the container structure of a JPEG or PNG file and list its segments or chunks with offsets, lengths and checksum state, plus any structural anomalies noticed while parsing.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_validate",
			Description: "Validate the structure of an image file. Low checks signature and decodability, medium adds the end-of-image marker and mandatory segments, high adds checksums, bounds and ordering.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"sensitivity": levelProperty("Validation sensitivity. Default medium"),
					"ignore_eof": map[string]interface{}{
						"type":        "boolean",
						"description": "Treat a missing end-of-image marker as informational. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},

		// Pixel analysis
		{
			Name:        "image_check_visual",
			Description: "Sample the decoded pixels and report whether large uniform gray or black regions suggest a partially decoded or damaged image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"strictness": levelProperty("Detection strictness. Higher strictness flags smaller regions. Default medium"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_steganalysis",
			Description: "Run the steganalysis detector bank (LSB, error level, histogram, noise, file size, metadata) and return a calibrated suspicion score with per-detector results. Scores indicate suspicion, never proof.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"strictness": levelProperty("Classification strictness. Higher strictness lowers the suspicion threshold. Default medium"),
				},
				"required": []string{"path"},
			},
		},

		// Full reports
		{
			Name:        "image_analyze",
			Description: "Run structural validation, the visual check and steganalysis on one file and return the complete report, including a diagnosis of any damage.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"sensitivity": levelProperty("Validation sensitivity. Default medium"),
					"strictness":  levelProperty("Visual and steganalysis strictness. Default medium"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_scan",
			Description: "Scan a directory of images and return counts plus the files found corrupt, suspicious, rejected or unreadable. Results are remembered per file, so rescanning only analyses changed files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to a directory or a single image file",
					},
					"formats": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Formats to include, e.g. [\"JPEG\", \"PNG\"]. Default from configuration",
					},
					"recursive": map[string]interface{}{
						"type":        "boolean",
						"description": "Descend into subdirectories. Default true",
						"default":     true,
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Concurrent analyses. Default one per CPU",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
