package openai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Names of the structured replies requested from the model.
const (
	replyDecision   = "tool_decision"
	replyDateRange  = "date_range"
	replyPhrasings  = "search_phrasings"
	replyWebSummary = "web_summary"
	replySQL        = "sql_query"
	replyAnswer     = "grounded_answer"
)

// replySchemas are the JSON schemas every structured reply must satisfy.
var replySchemas = map[string]map[string]any{
	replyDecision: {
		"type":     "object",
		"required": []any{"reasoning", "tools"},
		"properties": map[string]any{
			"reasoning": map[string]any{"type": "string"},
			"tools": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"tool", "confidence"},
					"properties": map[string]any{
						"tool":       map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number"},
						"params":     map[string]any{"type": "object"},
						"reasoning":  map[string]any{"type": "string"},
					},
				},
			},
		},
	},
	replyDateRange: {
		"type":     "object",
		"required": []any{"has_range"},
		"properties": map[string]any{
			"has_range": map[string]any{"type": "boolean"},
			"start":     map[string]any{"type": "string"},
			"end":       map[string]any{"type": "string"},
		},
	},
	replyPhrasings: {
		"type":     "object",
		"required": []any{"queries"},
		"properties": map[string]any{
			"queries": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	},
	replyWebSummary: {
		"type":     "object",
		"required": []any{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"source", "summary"},
					"properties": map[string]any{
						"source":  map[string]any{"type": "integer", "minimum": 1},
						"summary": map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
		},
	},
	replySQL: {
		"type":     "object",
		"required": []any{"sql"},
		"properties": map[string]any{
			"sql": map[string]any{"type": "string", "minLength": 1},
		},
	},
	replyAnswer: {
		"type":     "object",
		"required": []any{"answer", "citations"},
		"properties": map[string]any{
			"answer": map[string]any{"type": "string", "minLength": 1},
			"citations": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer"},
			},
		},
	},
}

// compiledSchema pairs a reply schema's wire form with its validator.
type compiledSchema struct {
	raw       json.RawMessage
	validator *jsonschema.Schema
}

func compileReplySchemas() (map[string]compiledSchema, error) {
	out := make(map[string]compiledSchema, len(replySchemas))
	for name, schema := range replySchemas {
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s schema: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		url := name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		out[name] = compiledSchema{raw: raw, validator: sch}
	}
	return out, nil
}

// validate checks a raw reply against the schema.
func (c compiledSchema) validate(content string) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(content)))
	if err != nil {
		return fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := c.validator.Validate(doc); err != nil {
		return fmt.Errorf("reply violates schema: %w", err)
	}
	return nil
}
