package mcp

import (
	"errors"
	"fmt"

	cierrors "github.com/codeintel/codeintel/internal/errors"
	"github.com/codeintel/codeintel/internal/store"
)

// MCP protocol error codes: the JSON-RPC standard set plus tool-specific
// extensions in the -32000 range.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
)

// MCPError is a protocol error with its numeric code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError flags a malformed tool input.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError translates an internal error into a protocol error, folding the
// structured error's remediation hint into the message when present.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var already *MCPError
	if errors.As(err, &already) {
		return already
	}

	var cie *cierrors.CodeIntelError
	if errors.As(err, &cie) {
		msg := cie.Message
		if cie.Suggestion != "" {
			msg = msg + " " + cie.Suggestion
		}
		switch cie.Code {
		case cierrors.ErrCodeIndexUnknown, cierrors.ErrCodeIndexNotFound:
			return &MCPError{Code: ErrCodeIndexNotFound, Message: msg}
		case cierrors.ErrCodeEmbeddingTimeout:
			return &MCPError{Code: ErrCodeTimeout, Message: msg}
		}
		switch cie.Category {
		case cierrors.CategoryInput:
			return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
		case cierrors.CategoryConflict:
			return &MCPError{Code: ErrCodeInvalidRequest, Message: msg}
		case cierrors.CategoryProvider:
			return &MCPError{Code: ErrCodeEmbeddingFailed, Message: msg}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: msg}
		}
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}

// projectIDFor mirrors the indexer's project id convention so status
// lookups address the same row the orchestrator wrote.
func projectIDFor(rootPath string) string {
	return store.ProjectIDFor(rootPath)
}
