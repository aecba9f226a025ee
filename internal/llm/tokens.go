package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jamiechicago312/agent-sdk/pkg/models"
)

// TokenCounter estimates prompt token counts for a model. Counts are
// approximate for non-OpenAI models (they use the cl100k_base encoding
// as a proxy) but good enough for condensation triggers.
//
// The tiktoken encoding is loaded lazily on first use; when it cannot
// be loaded the counter falls back to a 4-characters-per-token
// estimate.
type TokenCounter struct {
	model string

	once     sync.Once
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTokenCounter creates a counter for the given model.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (tc *TokenCounter) ensure() {
	tc.once.Do(func() {
		base := baseModelName(tc.model)

		encodingCacheMu.RLock()
		cached, ok := encodingCache[base]
		encodingCacheMu.RUnlock()
		if ok {
			tc.encoding = cached
			return
		}

		encoding, err := tiktoken.EncodingForModel(base)
		if err != nil {
			encoding, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}

		encodingCacheMu.Lock()
		encodingCache[base] = encoding
		encodingCacheMu.Unlock()
		tc.encoding = encoding
	})
}

// Count returns the token count for a plain text string.
func (tc *TokenCounter) Count(text string) int {
	tc.ensure()
	if tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages estimates the token count of a message list including
// per-message role overhead, following OpenAI's published format.
func (tc *TokenCounter) CountMessages(messages []models.Message) int {
	const tokensPerMessage = 3

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += tc.Count(string(msg.Role))
		total += tc.Count(msg.Text())
		for _, call := range msg.ToolCalls {
			total += tc.Count(call.Name)
			total += tc.Count(string(call.Arguments))
		}
	}

	// Reply priming overhead.
	total += 3

	return total
}
