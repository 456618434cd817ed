package council

// Test hooks for unexported prompt helpers.
var (
	SplitAnswerSummary = splitAnswerSummary
	StripCodeFences    = stripCodeFences
	Weave              = weave
)
