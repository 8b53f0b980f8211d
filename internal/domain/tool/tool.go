package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/query"
)

// Name identifies a retrieval tool. The set is closed: the router only emits names from All().
type Name string

// Tool name constants.
const (
	// Document searches the internal document index (hybrid keyword + vector).
	Document Name = "document_search"
	Web      Name = "web_search"
	Database Name = "database_query"
)

// All returns every known tool name in canonical order.
func All() []Name {
	return []Name{Document, Web, Database}
}

// IsValid checks if the name is one of the known tools.
func (n Name) IsValid() bool {
	return n == Document || n == Web || n == Database
}

func (n Name) String() string { return string(n) }

// Param keys understood by the document tool.
const (
	ParamDateRange = "date_range"
	ParamTopK      = "top_k"
	ParamAlpha     = "alpha"
)

// Params are per-call tool arguments. Values decoded from JSON arrive as float64.
type Params map[string]any

// Clone returns a shallow copy; nil stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns an integer param or def when absent or not a whole number.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// Float returns a float param or def when absent.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Descriptor advertises a tool to the decision service.
type Descriptor struct {
	Name        Name
	Description string
	// ParamsSchema is a JSON Schema document for Params.
	ParamsSchema map[string]any
}

// WithDateRange returns a copy of p with the range stored under ParamDateRange
// in its JSON shape: {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"}.
func (p Params) WithDateRange(r query.DateRange) Params {
	out := p.Clone()
	if out == nil {
		out = Params{}
	}
	v := map[string]any{}
	if !r.Start.IsZero() {
		v["start"] = r.Start.Format(time.DateOnly)
	}
	if !r.End.IsZero() {
		v["end"] = r.End.Format(time.DateOnly)
	}
	out[ParamDateRange] = v
	return out
}

// DateRange decodes ParamDateRange. It returns nil, nil when the param is absent.
func (p Params) DateRange() (*query.DateRange, error) {
	raw, ok := p[ParamDateRange]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case query.DateRange:
		return &v, nil
	case *query.DateRange:
		return v, nil
	case map[string]any:
		start, _ := v["start"].(string)
		end, _ := v["end"].(string)
		r, err := query.ParseDateRange(start, end)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", ParamDateRange, err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("param %s: unsupported type %T", ParamDateRange, raw)
	}
}
