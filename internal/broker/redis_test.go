package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorePriorityDominates(t *testing.T) {
	// A higher priority enqueued later must still outrank a lower
	// priority enqueued earlier.
	assert.Greater(t, score(3, 1_000_000), score(2, 1))
	assert.Greater(t, score(1, 9_999_999), score(0, 1))
}

func TestScoreFIFOWithinPriority(t *testing.T) {
	// ZPopMax takes the highest score, so within one priority the
	// earlier sequence number must score higher.
	assert.Greater(t, score(2, 10), score(2, 11))
	assert.Greater(t, score(0, 1), score(0, 2))
}

func TestScoreStaysExact(t *testing.T) {
	// Scores must remain exactly representable as float64 so Redis
	// ordering cannot be corrupted by rounding.
	a := score(4, 123_456_789)
	b := score(4, 123_456_790)
	assert.NotEqual(t, a, b)
	assert.Greater(t, a, b)
}
