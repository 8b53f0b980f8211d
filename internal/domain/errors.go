package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery signals a query that failed validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnknownTool signals a tool name outside the registered set.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDecisionUnavailable signals that the decision service failed or returned unusable output.
	ErrDecisionUnavailable = errors.New("decision service unavailable")
	// ErrToolFailed signals a tool invocation that ended with an error.
	ErrToolFailed = errors.New("tool failed")
	// ErrToolTimedOut signals a tool invocation that exceeded its deadline.
	ErrToolTimedOut = errors.New("tool timed out")
	// ErrIndexUnreachable signals a keyword or vector index failure.
	ErrIndexUnreachable = errors.New("index unreachable")
	// ErrTranslationFailed signals a natural-language to structured-query translation failure.
	ErrTranslationFailed = errors.New("query translation failed")
	// ErrGenerationFailed signals that the answer generator failed.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrEmbeddingProviderError signals an embedding API failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a chat completion API failure or an unusable reply.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrSearchProviderError signals a web search or rerank API failure.
	ErrSearchProviderError = errors.New("search provider error")
)

// ToolFailedError wraps ErrToolFailed with the tool name and cause.
type ToolFailedError struct {
	Tool  string
	Cause error
}

func (e *ToolFailedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrToolFailed.Error(), e.Tool, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *ToolFailedError) Unwrap() []error { return []error{ErrToolFailed, e.Cause} }

// NewToolFailed creates a tool failure error.
func NewToolFailed(tool string, cause error) error {
	return &ToolFailedError{Tool: tool, Cause: cause}
}

// ToolTimedOutError wraps ErrToolTimedOut with the tool name.
type ToolTimedOutError struct {
	Tool string
}

func (e *ToolTimedOutError) Error() string {
	return fmt.Sprintf("%s: %s", ErrToolTimedOut.Error(), e.Tool)
}

func (e *ToolTimedOutError) Unwrap() error { return ErrToolTimedOut }

// NewToolTimedOut creates a tool timeout error.
func NewToolTimedOut(tool string) error {
	return &ToolTimedOutError{Tool: tool}
}
