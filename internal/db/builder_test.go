package db

import (
	"strings"
	"testing"
)

func mustBuild(t *testing.T, b *IndexBuilder) *IndexDefinition {
	t.Helper()
	def, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return def
}

func TestIndexBuilder_ChunkSchema(t *testing.T) {
	idx := mustBuild(t, NewIndex("askdex:docs").
		Prefix("askdex:doc:").
		Text("content", 1).
		Text("title", 2).
		Tag("path").
		Numeric("published_at", true).
		Vector("vector", HNSW{Dim: 768}))

	if idx.Name != "askdex:docs" || len(idx.Prefixes) != 1 {
		t.Fatalf("unexpected header: %+v", idx)
	}
	if len(idx.Fields) != 5 {
		t.Fatalf("fields count = %d, want 5", len(idx.Fields))
	}
	if f := idx.Fields[1]; f.Type != IndexFieldText || f.Weight != 2 {
		t.Errorf("title = %+v, want TEXT weight 2", f)
	}
	if f := idx.Fields[3]; f.Type != IndexFieldNumeric || !f.Sortable {
		t.Errorf("published_at = %+v, want sortable NUMERIC", f)
	}
}

func TestIndexBuilder_VectorDefaults(t *testing.T) {
	tests := []struct {
		name   string
		params HNSW
		want   HNSW
	}{
		{
			name:   "zero values take defaults",
			params: HNSW{Dim: 768},
			want:   HNSW{Dim: 768, Distance: DistanceCosine, M: DefaultHNSWM, EFConstruction: DefaultHNSWEFConstruction},
		},
		{
			name:   "explicit values kept",
			params: HNSW{Dim: 4, Distance: DistanceIP, M: 32, EFConstruction: 400},
			want:   HNSW{Dim: 4, Distance: DistanceIP, M: 32, EFConstruction: 400},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := mustBuild(t, NewIndex("v-idx").Vector("vector", tt.params))
			if got := *idx.Fields[0].Vector; got != tt.want {
				t.Errorf("vector = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIndexBuilder_BuildReturnsCopy(t *testing.T) {
	b := NewIndex("idx").Tag("a")
	first := mustBuild(t, b)
	b.Tag("b")
	if len(first.Fields) != 1 {
		t.Errorf("earlier definition changed: %d fields", len(first.Fields))
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("x"), "index name is required"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"vector without dim", NewIndex("idx").Vector("v", HNSW{}), "positive DIM"},
		{"invalid characters", NewIndex("idx with spaces").Tag("x"), "invalid characters"},
		{"negative weight", NewIndex("idx").Text("t", -1), "weight"},
		{"duplicate field", NewIndex("idx").Tag("f").Numeric("f", false), "duplicate field name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_ValidateUnknownType(t *testing.T) {
	def := &IndexDefinition{Name: "idx", Fields: []IndexField{{Name: "x", Type: IndexFieldType(99)}}}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for unknown field type")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, s := range []string{"askdex:docs", "idx_1", "a-b"} {
		if !IsValidIdentifier(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []string{"", "a b", "x/y", "ключ"} {
		if IsValidIdentifier(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
