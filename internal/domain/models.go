package domain

import "time"

// CompletionRequest represents a unified model call request.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// CompletionResponse represents a unified model call response.
type CompletionResponse struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Content    string    `json:"content"`
	Usage      Usage     `json:"usage"`
	FinishTime time.Time `json:"finish_time"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Account holds a billed account's balance. The balance is in minor units
// (tenths of a cent) and is mutated only through the ledger's atomic
// operations, never via read-modify-write.
type Account struct {
	ID                string    `json:"id"`
	BalanceMinorUnits int64     `json:"balance_minor_units"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BalanceUSD derives the balance in USD.
func (a Account) BalanceUSD() float64 {
	return float64(a.BalanceMinorUnits) / 1000.0
}

// Usage record statuses.
const (
	UsagePending   = "pending"
	UsageSucceeded = "succeeded"
	UsageFailed    = "failed"
)

// UsageRecord is one append-only ledger entry. (AccountID, RequestID) is
// unique, which guarantees at-most-once billing per logical call under
// retries. Output keeps the successful call's text so an idempotent replay
// can return the stored result without re-invoking the capability.
type UsageRecord struct {
	AccountID      string    `json:"account_id"`
	RequestID      string    `json:"request_id"`
	Capability     string    `json:"capability"`
	InputUnits     int       `json:"input_units"`
	OutputUnits    int       `json:"output_units"`
	CostMinorUnits int64     `json:"cost_minor_units"`
	Status         string    `json:"status"`
	Output         string    `json:"output,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Voice spec sources.
const (
	VoiceSourceCatalog = "catalog"
	VoiceSourceAdHoc   = "adhoc"
)

// VoiceSpec identifies one responder persona. Catalogued specs come from the
// static persona catalog; ad hoc specs are built per turn by the selector and
// are never persisted.
type VoiceSpec struct {
	Source      string `json:"source" yaml:"source"`
	Key         string `json:"key" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Outcome is the result of one voice invocation. Failed voices carry Err and
// an empty answer; outcomes are immutable once stored in a turn.
type Outcome struct {
	Voice   string `json:"voice"`
	Answer  string `json:"answer"`
	Summary string `json:"summary"`
	Err     string `json:"error,omitempty"`
}

// Failed reports whether the voice invocation failed.
func (o Outcome) Failed() bool {
	return o.Err != ""
}

// Turn groups one user query with every voice outcome and the consolidated
// answer derived from it.
type Turn struct {
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`
	AccountID      string    `json:"account_id"`
	Query          string    `json:"query"`
	FinalAnswer    string    `json:"final_answer"`
	Rationale      string    `json:"rationale,omitempty"`
	Outcomes       []Outcome `json:"outcomes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary reduces the turn to what later turns carry as context.
func (t *Turn) Summary() TurnSummary {
	summaries := make([]string, 0, len(t.Outcomes))
	for _, o := range t.Outcomes {
		if o.Summary != "" {
			summaries = append(summaries, o.Summary)
		}
	}

	answer := t.FinalAnswer
	if len(summaries) > 0 {
		answer = joinSummaries(summaries)
	}

	return TurnSummary{
		TurnID: t.TurnID,
		Query:  t.Query,
		Answer: answer,
	}
}

func joinSummaries(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// TurnSummary is the retained context for one prior turn.
type TurnSummary struct {
	TurnID string `json:"turn_id"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
}
