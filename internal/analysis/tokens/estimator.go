// Package tokens estimates how many model tokens a text will cost.
package tokens

import (
	"log"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the gpt-4o family.
const DefaultEncoding = "o200k_base"

// Counter reports the token cost of a text.
type Counter interface {
	Count(text string) int
}

// Estimator counts tokens with a BPE encoding, falling back to a rune heuristic
// when the encoding cannot be loaded.
type Estimator struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an estimator for the named tiktoken encoding.
// The encoding is loaded lazily on first use.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Estimator{encoding: encoding}
}

// Count returns the token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(e.load)
	if e.enc == nil {
		return Approximate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Exact reports whether the BPE encoding is in use.
func (e *Estimator) Exact() bool {
	e.once.Do(e.load)
	return e.enc != nil
}

func (e *Estimator) load() {
	enc, err := tiktoken.GetEncoding(e.encoding)
	if err != nil {
		log.Printf("[tokens] encoding %s unavailable, using approximate counts: %v", e.encoding, err)
		return
	}
	e.enc = enc
}

// Approximate assumes roughly four characters per token.
func Approximate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

// Count implements Counter.
func (f CounterFunc) Count(text string) int {
	return f(text)
}
