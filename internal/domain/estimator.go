package domain

// Rough heuristic: 1 token per 4 characters. Used only when the capability
// does not report counts itself.
const charsPerUnit = 4

// UsageEstimator derives usage units for a request/response pair, preferring
// capability-reported counts over the local heuristic.
type UsageEstimator struct{}

// NewUsageEstimator creates a new estimator.
func NewUsageEstimator() *UsageEstimator {
	return &UsageEstimator{}
}

// Estimate returns the usage for one call. Reported counts win; missing
// counts fall back to a character-length estimate of the input and output.
func (e *UsageEstimator) Estimate(input string, resp *CompletionResponse) Usage {
	usage := Usage{}
	if resp != nil {
		usage = resp.Usage
	}

	if usage.PromptTokens <= 0 {
		usage.PromptTokens = EstimateUnits(input)
	}

	if usage.CompletionTokens <= 0 && resp != nil {
		usage.CompletionTokens = EstimateUnits(resp.Content)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

// EstimateUnits estimates usage units for a piece of text.
func EstimateUnits(text string) int {
	return len(text) / charsPerUnit
}
