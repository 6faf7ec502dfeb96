package insight

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

var (
	ErrInsightNotFound = errors.New("insight not found")
	ErrNotCompleted    = errors.New("analysis is not completed")
)
