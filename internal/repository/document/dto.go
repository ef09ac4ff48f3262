package document

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// Hash field names shared with the search repository.
const (
	FieldContent  = "__content"
	FieldVector   = "__vector"
	FieldMetadata = "__metadata"
)

// buildHashFields flattens a document for HSET. Metadata is stored as one
// JSON field since it is only read back, never filtered on.
func buildHashFields(doc *domain.Document) (map[string]string, error) {
	meta := doc.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return map[string]string{
		FieldContent:  doc.Text,
		FieldVector:   vectorToBytes(doc.Embedding),
		FieldMetadata: string(metaJSON),
	}, nil
}

// ParseMetadata decodes the __metadata field. String lists come back as []string.
func ParseMetadata(raw string) (domain.Metadata, error) {
	if raw == "" {
		return domain.Metadata{}, nil
	}
	var m domain.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	for k, v := range m {
		if _, ok := v.([]any); ok {
			m[k] = m.Strings(k)
		}
	}
	return m, nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// BytesToVector deserializes a binary string back to []float32.
func BytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
