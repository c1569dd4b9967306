// Package budget estimates token counts for grounding context and rendered
// prompts. Recommendations may run against several LLM backends with
// different tokenizers, so the package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead approximates the per-message framing cost most chat
	// APIs charge on top of content.
	messageOverhead = 4

	// DefaultContextTokens is the default budget for the retrieved-books
	// context block. Five full excerpts fit comfortably.
	DefaultContextTokens = 1500

	// DefaultMaxPromptTokens is the input size above which the orchestrator
	// warns that a small-context model may truncate the prompt.
	DefaultMaxPromptTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
// Any non-empty string costs at least one token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a rendered
// prompt, summing framing, role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Remaining returns how many tokens are left in max after used, never
// negative.
func Remaining(max, used int) int {
	if used >= max {
		return 0
	}
	return max - used
}
