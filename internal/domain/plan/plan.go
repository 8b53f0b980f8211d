package plan

import (
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// Step is one scheduled tool invocation.
type Step struct {
	Tool     tool.Name
	Params   tool.Params
	Deadline time.Duration
}

// Plan is an immutable ordered list of steps.
type Plan struct {
	steps []Step
}

// New creates a plan. Steps are copied.
func New(steps []Step) Plan {
	cp := make([]Step, len(steps))
	for i, s := range steps {
		s.Params = s.Params.Clone()
		cp[i] = s
	}
	return Plan{steps: cp}
}

// Steps returns a copy of the steps in plan order.
func (p Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	for i, s := range p.steps {
		s.Params = s.Params.Clone()
		out[i] = s
	}
	return out
}

// Len returns the number of steps.
func (p Plan) Len() int { return len(p.steps) }

// IsEmpty reports whether the plan has no steps.
func (p Plan) IsEmpty() bool { return len(p.steps) == 0 }
