package selection

import "github.com/kailas-cloud/askdex/internal/domain/tool"

// Candidate is a raw tool choice as reported by the decision service, before validation.
type Candidate struct {
	Tool       string
	Confidence float64
	Params     map[string]any
	Reasoning  string
}

// Call is a validated tool invocation request.
type Call struct {
	Tool       tool.Name
	Confidence float64
	Params     tool.Params
}

// Selection is the ordered set of tools chosen for a query.
// An empty selection means the query is answered directly.
type Selection struct {
	calls     []Call
	reasoning string
}

// New creates a selection. Calls are copied.
func New(calls []Call, reasoning string) Selection {
	cp := make([]Call, len(calls))
	for i, c := range calls {
		c.Params = c.Params.Clone()
		cp[i] = c
	}
	return Selection{calls: cp, reasoning: reasoning}
}

// Empty returns a direct-answer selection.
func Empty(reasoning string) Selection {
	return Selection{reasoning: reasoning}
}

// Calls returns a copy of the calls in selection order.
func (s Selection) Calls() []Call {
	out := make([]Call, len(s.calls))
	for i, c := range s.calls {
		c.Params = c.Params.Clone()
		out[i] = c
	}
	return out
}

// Reasoning returns the decision rationale.
func (s Selection) Reasoning() string { return s.reasoning }

// IsDirect reports whether no tool was selected.
func (s Selection) IsDirect() bool { return len(s.calls) == 0 }

// Len returns the number of selected tools.
func (s Selection) Len() int { return len(s.calls) }

// Has reports whether the tool was selected.
func (s Selection) Has(name tool.Name) bool {
	for _, c := range s.calls {
		if c.Tool == name {
			return true
		}
	}
	return false
}

// Confidence returns the confidence for a selected tool, or 0.
func (s Selection) Confidence(name tool.Name) float64 {
	for _, c := range s.calls {
		if c.Tool == name {
			return c.Confidence
		}
	}
	return 0
}
