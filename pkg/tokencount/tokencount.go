// Package tokencount measures text in model tokens, falling back to a
// character-based estimate when the tokenizer cannot be initialized.
package tokencount

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingName is the BPE vocabulary used for counting. The exact
	// vocabulary matters less than counting consistently across sessions.
	encodingName = "cl100k_base"

	// charsPerToken approximates prose tokenization for the fallback path.
	charsPerToken = 3.5
)

// Counter counts tokens in text. The zero value is not usable; construct with
// NewCounter.
type Counter struct {
	enc          *tiktoken.Tiktoken
	normalizeCap int
}

// NewCounter returns a Counter. When enabled is false, or the encoding cannot
// be loaded, the Counter estimates from character counts instead of encoding.
// normalizeCap is the token volume treated as a "heavy" session by Normalize;
// values <= 0 select the default cap.
func NewCounter(enabled bool, normalizeCap int) *Counter {
	c := &Counter{normalizeCap: normalizeCap}
	if c.normalizeCap <= 0 {
		c.normalizeCap = DefaultNormalizeCap
	}
	if enabled {
		// Encoding load hits the network on a cold cache; a failure
		// degrades to estimation rather than erroring.
		if enc, err := tiktoken.GetEncoding(encodingName); err == nil {
			c.enc = enc
		}
	}
	return c
}

// DefaultNormalizeCap is the session token volume that maps to a normalized
// weight of 1.0.
const DefaultNormalizeCap = 100000

// Exact reports whether counts come from the real tokenizer rather than the
// character estimate.
func (c *Counter) Exact() bool { return c.enc != nil }

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return int(float64(utf8.RuneCountInString(text)) / charsPerToken)
}

// Normalize maps a token count onto [0,1] against the counter's cap.
func (c *Counter) Normalize(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	v := float64(tokens) / float64(c.normalizeCap)
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeCap returns the cap used by Normalize.
func (c *Counter) NormalizeCap() int { return c.normalizeCap }
