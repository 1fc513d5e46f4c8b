package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// Tool name constants.
const (
	ToolNameStatus   = "import_status"
	ToolNameValidate = "import_validate"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRecordPath indicates the record_path parameter is empty.
	ErrEmptyRecordPath = errors.New("record_path parameter is required and must not be empty")
	// ErrRecordPathNotAbsolute indicates the record_path is not an absolute path.
	ErrRecordPathNotAbsolute = errors.New("record_path must be an absolute path")
)

// RecordInput is the input schema shared by the import tools.
type RecordInput struct {
	RecordPath string `json:"record_path" jsonschema:"absolute path to a recovery record"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// ValidationResult is returned by import_validate.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleStatus(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input RecordInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateRecordInput(input)
	if err != nil {
		return errorResult(err)
	}

	state, err := s.records.Load(input.RecordPath)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(state.Summarize())
}

// handleValidate reports an invalid record as a successful call with Valid=false;
// only a missing or unreadable path is a tool error.
func (s *Server) handleValidate(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input RecordInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateRecordInput(input)
	if err != nil {
		return errorResult(err)
	}

	state, err := s.records.Load(input.RecordPath)

	switch {
	case err == nil:
		return jsonResult(ValidationResult{Valid: true, Stage: state.ImportStage.String()})
	case errors.Is(err, recovery.ErrInvalidRecord), errors.Is(err, recovery.ErrUnknownStage):
		return jsonResult(ValidationResult{Error: err.Error()})
	default:
		return errorResult(err)
	}
}

func validateRecordInput(input RecordInput) error {
	if input.RecordPath == "" {
		return ErrEmptyRecordPath
	}

	if !filepath.IsAbs(input.RecordPath) {
		return fmt.Errorf("%w: %s", ErrRecordPathNotAbsolute, input.RecordPath)
	}

	return nil
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
