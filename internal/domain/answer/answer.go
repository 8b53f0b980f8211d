package answer

import (
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/source"
)

// Mode describes how an answer was produced.
type Mode string

// Answer modes.
const (
	// ModeDirect answers from the model alone, no tools selected.
	ModeDirect Mode = "direct"
	// ModeRetrieval answers from at least one successful tool.
	ModeRetrieval Mode = "retrieval"
	// ModeDegraded acknowledges that every selected tool failed.
	ModeDegraded Mode = "degraded"
)

// Citation points at one item of evidence used in the answer.
type Citation struct {
	// Index is the 1-based position of the item in the evidence bundle.
	Index    int
	ItemID   string
	Type     source.Type
	Title    string
	Location string
}

// ToolReport summarizes one tool's part in producing the answer.
type ToolReport struct {
	Name       string
	Confidence float64
	Status     string
	Elapsed    time.Duration
	Items      int
}

// Answer is the final response for a query.
type Answer struct {
	Text           string
	Mode           Mode
	Citations      []Citation
	FailedTools    []string
	Notes          []string
	ConversationID string
	Reasoning      string
	Tools          []ToolReport
}

// Degraded reports whether any retrieval step failed.
func (a Answer) Degraded() bool {
	return a.Mode == ModeDegraded || len(a.FailedTools) > 0
}
