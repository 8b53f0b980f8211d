package db

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition for the named index.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix restricts the index to keys with the given prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Text adds a full-text field. weight scales its BM25 contribution; 0 keeps the default.
func (b *IndexBuilder) Text(name string, weight float64) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldText, Weight: weight})
}

// Tag adds an exact-match field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag})
}

// Numeric adds a numeric field, optionally sortable.
func (b *IndexBuilder) Numeric(name string, sortable bool) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric, Sortable: sortable})
}

// Vector adds an HNSW vector field. Zero distance, M and EF construction take defaults.
func (b *IndexBuilder) Vector(name string, params HNSW) *IndexBuilder {
	if params.Distance == "" {
		params.Distance = DistanceCosine
	}
	if params.M <= 0 {
		params.M = DefaultHNSWM
	}
	if params.EFConstruction <= 0 {
		params.EFConstruction = DefaultHNSWEFConstruction
	}
	return b.add(IndexField{Name: name, Type: IndexFieldVector, Vector: &params})
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}
