// internal/providers/tokens.go
package providers

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with a tiktoken BPE encoding. The encoding is
// resolved on first use; when neither the model name nor the configured
// fallback encoding is known, every count returns -1.
type TokenCounter struct {
	model    string
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a counter for model. fallbackEncoding (for example
// "cl100k_base") is used when tiktoken does not know the model; pass "" to
// disable the fallback.
func NewTokenCounter(model, fallbackEncoding string) *TokenCounter {
	return &TokenCounter{model: model, encoding: fallbackEncoding}
}

func (c *TokenCounter) resolve() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil && c.encoding != "" {
		enc, err = tiktoken.GetEncoding(c.encoding)
	}
	if err == nil {
		c.enc = enc
	}
}

// Count returns the number of tokens in text, 0 for nil, or -1 when no
// encoding is available.
func (c *TokenCounter) Count(text *string) (n int) {
	if text == nil {
		return 0
	}
	defer func() {
		if recover() != nil {
			n = -1
		}
	}()
	c.once.Do(c.resolve)
	if c.enc == nil {
		return -1
	}
	return len(c.enc.Encode(*text, nil, nil))
}
