package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for providers that omit usage
// accounting in their response. Encodings are cached per model since
// tiktoken initialization loads a sizeable BPE table.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

// NewTokenCounter returns a counter for model, falling back to the
// cl100k_base encoding when the model is unrecognized.
func NewTokenCounter(model string) *TokenCounter {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// No usable encoding available; Count falls back to the
			// character heuristic below.
			return &TokenCounter{model: model}
		}
	}

	encodingMu.Lock()
	encodingCache[model] = enc
	encodingMu.Unlock()
	return &TokenCounter{encoding: enc, model: model}
}

// Count returns the token count for text, or a 4-chars-per-token estimate
// if no encoding could be loaded.
func (c *TokenCounter) Count(text string) int {
	if c.encoding == nil {
		return len(text) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountMessages estimates tokens across a conversation, including the
// per-message role/framing overhead OpenAI's cookbook accounts for.
func (c *TokenCounter) CountMessages(messages []Message) int {
	const perMessageOverhead = 3
	total := perMessageOverhead // reply priming
	for _, m := range messages {
		total += perMessageOverhead
		total += c.Count(m.Role)
		total += c.Count(m.Content)
	}
	return total
}
