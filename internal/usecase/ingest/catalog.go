package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// RecordID accepts both numeric and string product ids.
type RecordID string

// UnmarshalJSON keeps numbers in their literal form so 42 and "42" match.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("record id: %w", err)
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id must be a string or number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// Record is one catalog entry.
type Record struct {
	ID             RecordID       `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	Price          float64        `json:"price"`
	Features       []string       `json:"features"`
	Specifications map[string]any `json:"specifications"`
}

// ParseCatalog decodes the records array stored under key in a JSON object.
// A missing key or a non-array value is domain.ErrInvalidCatalog.
func ParseCatalog(data []byte, key string) ([]Record, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: parse json: %w", domain.ErrInvalidCatalog, err)
	}

	raw, ok := top[key]
	if !ok || !isArray(raw) {
		return nil, fmt.Errorf("%w: %s array not found", domain.ErrInvalidCatalog, key)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidCatalog, key, err)
	}

	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: %s[%d] has no id", domain.ErrInvalidCatalog, key, i)
		}
	}
	return records, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// formatScalar renders a specification value the way it reads in the source file.
func formatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
