package llm

import (
	"unicode/utf8"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// Estimator approximates the token cost of a request before it is sent.
type Estimator func(messages []transport.Message) int

// charsPerToken is the divisor of the default estimate.
const charsPerToken = 4

// EstimateTokens charges one token per four characters of message text,
// rounded up. System messages count.
func EstimateTokens(messages []transport.Message) int {
	chars := 0
	for _, m := range messages {
		chars += utf8.RuneCountInString(m.Text())
	}
	return (chars + charsPerToken - 1) / charsPerToken
}
