package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

// Supported vector distance metrics. Document search scores assume COSINE.
const (
	DistanceL2     DistanceMetric = "L2"
	DistanceIP     DistanceMetric = "IP"
	DistanceCosine DistanceMetric = "COSINE"
)

// HNSW graph defaults applied when a vector field leaves them zero.
const (
	DefaultHNSWM              = 16
	DefaultHNSWEFConstruction = 200
)

// IndexFieldType enumerates the FT field types the chunk index uses.
type IndexFieldType int

// Field types.
const (
	IndexFieldNumeric IndexFieldType = iota
	IndexFieldTag
	IndexFieldText
	IndexFieldVector
)

// HNSW configures a FLOAT32 vector field.
type HNSW struct {
	Dim            int
	Distance       DistanceMetric
	M              int
	EFConstruction int
}

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name     string
	Type     IndexFieldType
	Weight   float64 // TEXT: BM25 field weight, 0 means the engine default
	Sortable bool    // NUMERIC
	Vector   *HNSW   // VECTOR
}

// IndexDefinition is an FT index over HASH keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Type {
		case IndexFieldText:
			if f.Weight < 0 {
				return fmt.Errorf("field %s: text weight must not be negative", f.Name)
			}
		case IndexFieldVector:
			if f.Vector == nil || f.Vector.Dim <= 0 {
				return fmt.Errorf("field %s: vector field requires positive DIM", f.Name)
			}
		case IndexFieldNumeric, IndexFieldTag:
		default:
			return fmt.Errorf("field %s: unknown type %d", f.Name, f.Type)
		}
	}
	return nil
}

// IsValidIdentifier reports whether s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == ':' || r == '-':
		default:
			return false
		}
	}
	return true
}
