package catalograg

import "time"

// Format is the best-effort shape of an answer.
type Format string

// Answer formats.
const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatGraph Format = "graph"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one conversation.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Response is the answer to one message. IsValid is false when the
// question was rejected as unrelated to the catalog.
type Response struct {
	IsValid  bool   `json:"isValid"`
	Response string `json:"response"`
	Format   Format `json:"format"`

	// Token counts from the X-Embedding-Tokens and X-Completion-Tokens headers.
	EmbeddingTokens  int `json:"-"`
	CompletionTokens int `json:"-"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// ProviderBudget is one provider's token standing within a period.
// Limit 0 and Remaining -1 mean unlimited.
type ProviderBudget struct {
	Provider  string `json:"provider"`
	Limit     int64  `json:"tokensLimit"`
	Used      int64  `json:"tokensUsed"`
	Remaining int64  `json:"tokensRemaining"`
	Exhausted bool   `json:"isExhausted"`
}

// UsageReport contains token usage per provider for a period.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time
	PeriodEnd   time.Time
	Providers   []ProviderBudget
}

type usageReportDTO struct {
	Period      UsagePeriod      `json:"period"`
	PeriodStart int64            `json:"periodStart"`
	PeriodEnd   int64            `json:"periodEnd"`
	Providers   []ProviderBudget `json:"providers"`
}
