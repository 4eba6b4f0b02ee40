package reasoning

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		// cl100k_base approximates the tokenizer family of the reasoning
		// backends this gateway fronts closely enough for usage
		// accounting and fallback tokenization; exact parity with a
		// specific upstream model's tokenizer is not required by spec.
		got, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
			return
		}
		enc = got
	})
	return enc
}

// CountTokens returns a real token count for text using tiktoken-go,
// falling back to the coarse 4-chars-per-token heuristic if the encoding
// table failed to load.
func CountTokens(text string) int {
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}
