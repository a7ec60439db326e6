package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounterCount(t *testing.T) {
	tc := NewTokenCounter("gpt-4o")
	n := tc.Count("hello world")
	assert.Greater(t, n, 0)
}

func TestTokenCounterCountMessagesOverhead(t *testing.T) {
	tc := NewTokenCounter("gpt-4o")
	one := tc.CountMessages([]Message{{Role: "user", Content: "hi"}})
	two := tc.CountMessages([]Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hi"}})
	assert.Greater(t, two, one)
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	tc := NewTokenCounter("not-a-real-model-xyz")
	assert.Greater(t, tc.Count("some text here"), 0)
}
