package db

import "testing"

func TestIndexBuilder_HNSW(t *testing.T) {
	def, err := NewIndex("catalograg:semantic_chunks:idx").
		Prefix("catalograg:semantic_chunks:").
		VectorHNSWAs("__vector", "vector", 1536, DistanceCosine, 32, 400).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.StorageType != StorageHash {
		t.Errorf("expected HASH storage, got %s", def.StorageType)
	}
	if len(def.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(def.Fields))
	}
	v := def.Fields[0]
	if v.Alias != "vector" || v.VectorDim != 1536 || v.VectorM != 32 || v.VectorEFConstruct != 400 {
		t.Errorf("unexpected vector field: %+v", v)
	}
}

func TestIndexBuilder_Flat(t *testing.T) {
	def, err := NewIndex("idx").VectorFlatAs("__vector", "vector", 4, DistanceCosine).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Fields[0].VectorAlgo != VectorFlat {
		t.Errorf("expected FLAT, got %s", def.Fields[0].VectorAlgo)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").VectorFlatAs("v", "", 4, DistanceCosine)},
		{"invalid name", NewIndex("bad name!").VectorFlatAs("v", "", 4, DistanceCosine)},
		{"no fields", NewIndex("idx")},
		{"zero dim", NewIndex("idx").VectorFlatAs("v", "", 0, DistanceCosine)},
		{"duplicate alias", NewIndex("idx").VectorFlatAs("a", "x", 4, DistanceCosine).VectorFlatAs("b", "x", 4, DistanceCosine)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.b.Build(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"abc", "a:b-c_1", "catalograg:semantic_chunks:idx"}
	invalid := []string{"", "a b", "a*b", "коллекция"}
	for _, s := range valid {
		if !IsValidIdentifier(s) {
			t.Errorf("expected %q valid", s)
		}
	}
	for _, s := range invalid {
		if IsValidIdentifier(s) {
			t.Errorf("expected %q invalid", s)
		}
	}
}
