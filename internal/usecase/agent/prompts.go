package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// User-facing fixed texts.
const (
	RejectionMessage = "I can only help with questions about our product catalog."
	FailureMessage   = "Sorry, I couldn't generate a response right now. Please try again."
	NoResultsContext = "No relevant products found."
)

const validationPrompt = `You are a classifier for a product catalog assistant.
Decide whether the question below asks about product information (products,
features, specifications, prices, categories, availability, comparisons) or
analytics over the product catalog.

Answer with exactly one word: true or false.

Question: %s`

const systemPrompt = `You are a helpful product catalog assistant.
Answer only from the product context supplied with each question. If the
context does not contain the answer, say that you don't have that information.
Mention product names, prices and key features when they are relevant.
When the user asks for a comparison, you may answer with a markdown table.
When the user asks for structured data, answer with JSON only, without prose
around it.`

func buildValidationMessages(query string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: fmt.Sprintf(validationPrompt, query)},
	}
}

// parseVerdict accepts exactly "true" or "false" after trimming and lowercasing.
func parseVerdict(answer string) (valid, ok bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// buildContext renders retrieved documents followed by a structured
// details block. No documents yields NoResultsContext.
func buildContext(docs []domain.ScoredDocument) string {
	if len(docs) == 0 {
		return NoResultsContext
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	var b strings.Builder
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nProduct details:")
	for _, d := range docs {
		b.WriteString("\n- ")
		b.WriteString(detailLine(d.Document))
	}
	return b.String()
}

func detailLine(d domain.Document) string {
	id := d.Metadata.String("productId")
	if id == "" {
		id = d.ID
	}
	price := "n/a"
	if p, ok := d.Metadata.Float("price"); ok {
		price = "$" + strconv.FormatFloat(p, 'f', -1, 64)
	}
	features := strings.Join(d.Metadata.Strings("features"), ", ")
	if features == "" {
		features = "none listed"
	}
	return fmt.Sprintf("%s | category: %s | price: %s | features: %s",
		id, d.Metadata.String("category"), price, features)
}

func buildGenerationMessages(history []domain.ChatMessage, context, query string) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: "Context:\n" + context + "\n\nQuestion: " + query,
	})
	return msgs
}
