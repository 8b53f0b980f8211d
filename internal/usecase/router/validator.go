package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// paramValidator checks decision params against each tool's JSON schema.
type paramValidator struct {
	schemas map[tool.Name]*jsonschema.Schema
}

func newParamValidator(descs []tool.Descriptor) (*paramValidator, error) {
	v := &paramValidator{schemas: make(map[tool.Name]*jsonschema.Schema, len(descs))}
	for _, d := range descs {
		if d.ParamsSchema == nil {
			continue
		}
		doc, err := normalizeJSON(d.ParamsSchema)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", d.Name, err)
		}
		c := jsonschema.NewCompiler()
		url := string(d.Name) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", d.Name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", d.Name, err)
		}
		v.schemas[d.Name] = sch
	}
	return v, nil
}

// Validate reports whether params satisfy the tool's schema. Tools without a schema accept anything.
func (v *paramValidator) Validate(name tool.Name, params map[string]any) error {
	sch, ok := v.schemas[name]
	if !ok {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	doc, err := normalizeJSON(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("params for %s: %w", name, err)
	}
	return nil
}

// normalizeJSON round-trips v so numbers become json.Number as the validator expects.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw)) //nolint:wrapcheck // wrapped by callers
}
