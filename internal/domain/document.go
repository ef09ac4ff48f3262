package domain

import "strings"

// Metadata values are scalars (string, float64, int, bool) or []string.
type Metadata map[string]any

// Document is a unit stored in a collection. Embedding is optional.
type Document struct {
	ID        string
	Text      string
	Metadata  Metadata
	Embedding []float32
}

// ScoredDocument is a query hit. Score is similarity in [0, 1].
type ScoredDocument struct {
	Document
	Score float64
}

// CollectionInfo describes a collection as recorded by the backend.
type CollectionInfo struct {
	Name      string `json:"name"`
	VectorDim int    `json:"vector_dim"`
	Metric    string `json:"metric"`
	CreatedAt int64  `json:"created_at"` // unix millis
}

// String returns the value at key when it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Strings returns the value at key as a string list. A comma-separated
// string is split, so older entries written as joined text still read back.
func (m Metadata) Strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitList(v)
	}
	return nil
}

// Float returns the value at key as a float64.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
