package domain

import "strings"

// Format is the best-effort shape of a generated answer.
type Format string

// Response formats understood by the presentation layer.
const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatGraph Format = "graph"
)

// QueryResponse is the outcome of one query.
type QueryResponse struct {
	IsValid  bool   `json:"isValid"`
	Response string `json:"response"`
	Format   Format `json:"format"`
}

// ClassifyFormat guesses the response shape from its text. It is a heuristic:
// a leading brace or bracket means json, otherwise the words "table" and
// "graph" are looked for in that order. Nothing is parsed or validated.
func ClassifyFormat(text string) Format {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return FormatJSON
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "table"):
		return FormatTable
	case strings.Contains(lower, "graph"):
		return FormatGraph
	}
	return FormatText
}
