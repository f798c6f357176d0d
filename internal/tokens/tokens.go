// Package tokens counts prompt tokens so the composer can keep retrieved
// context within budget.
package tokens

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter reports how many tokens text occupies.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts with a BPE encoding such as cl100k_base or o200k_base.
type Tiktoken struct {
	codec tokenizer.Codec
}

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding %q: %w", encoding, err)
	}
	return &Tiktoken{codec: codec}, nil
}

func (t *Tiktoken) Count(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return NewEstimator().Count(text)
	}
	return len(ids)
}

// Estimator approximates tokens from the character count.
type Estimator struct {
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0, // Reasonable default for most models
	}
}

func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / e.CharsPerToken))
}

// New returns a tiktoken counter for encoding, or the estimator when the
// encoding is unknown.
func New(encoding string) Counter {
	if encoding == "" {
		return NewEstimator()
	}
	t, err := NewTiktoken(encoding)
	if err != nil {
		return NewEstimator()
	}
	return t
}
