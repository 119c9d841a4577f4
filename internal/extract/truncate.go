package extract

import (
	"github.com/rotisserie/eris"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultMaxTextTokens bounds the document text sent to a provider.
const DefaultMaxTextTokens = 1500

// Truncator caps text to a token budget using the cl100k_base encoding.
type Truncator struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewTruncator returns a Truncator. maxTokens <= 0 selects DefaultMaxTextTokens.
func NewTruncator(maxTokens int) (*Truncator, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTextTokens
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, eris.Wrap(err, "load cl100k_base tokenizer")
	}
	return &Truncator{codec: codec, maxTokens: maxTokens}, nil
}

// MaxTokens returns the configured budget.
func (t *Truncator) MaxTokens() int { return t.maxTokens }

// Count returns the number of tokens in text.
func (t *Truncator) Count(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// Truncate returns text cut to at most MaxTokens tokens. A nil Truncator
// returns text unchanged.
func (t *Truncator) Truncate(text string) string {
	if t == nil || text == "" {
		return text
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil || len(ids) <= t.maxTokens {
		return text
	}
	out, err := t.codec.Decode(ids[:t.maxTokens])
	if err != nil {
		return text
	}
	return out
}
