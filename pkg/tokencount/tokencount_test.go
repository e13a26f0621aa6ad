package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledCounterEstimates(t *testing.T) {
	c := NewCounter(false, 0)

	assert.False(t, c.Exact())
	assert.Equal(t, 0, c.Count(""))

	// 35 characters at 3.5 chars per token.
	assert.Equal(t, 10, c.Count(strings.Repeat("a", 35)))
}

func TestNormalize(t *testing.T) {
	c := NewCounter(false, 1000)

	assert.Equal(t, 0.0, c.Normalize(0))
	assert.Equal(t, 0.0, c.Normalize(-5))
	assert.Equal(t, 0.5, c.Normalize(500))
	assert.Equal(t, 1.0, c.Normalize(1000))
	assert.Equal(t, 1.0, c.Normalize(5000))
}

func TestNormalizeCapDefaults(t *testing.T) {
	c := NewCounter(false, 0)
	assert.Equal(t, DefaultNormalizeCap, c.NormalizeCap())

	c = NewCounter(false, 42)
	assert.Equal(t, 42, c.NormalizeCap())
}

func TestCountIsMonotonicInLength(t *testing.T) {
	c := NewCounter(false, 0)

	short := c.Count("a short note")
	long := c.Count(strings.Repeat("a short note ", 50))
	assert.Greater(t, long, short)
}
