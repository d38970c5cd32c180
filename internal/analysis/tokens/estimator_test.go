package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproximate(t *testing.T) {
	assert.Equal(t, 0, Approximate(""))
	assert.Equal(t, 1, Approximate("a"))
	assert.Equal(t, 1, Approximate("abcd"))
	assert.Equal(t, 2, Approximate("abcde"))
	assert.Equal(t, 250, Approximate(strings.Repeat("x", 1000)))
}

func TestEstimatorFallsBackOnUnknownEncoding(t *testing.T) {
	e := NewEstimator("no-such-encoding")

	assert.False(t, e.Exact())
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, Approximate("hello there"), e.Count("hello there"))
}

func TestCounterFunc(t *testing.T) {
	var c Counter = CounterFunc(func(string) int { return 42 })
	assert.Equal(t, 42, c.Count("anything"))
}
