package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayAfter(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: 2 * time.Millisecond, Max: 10 * time.Millisecond, K: 2}
	expect := []time.Duration{
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}
	for i, e := range expect {
		assert.Equal(t, e, b.DelayAfter(false), "failure #%d", i+1)
	}
	assert.Equal(t, 2*time.Millisecond, b.DelayAfter(true))
	assert.Equal(t, 2*time.Millisecond, b.DelayAfter(false))
}

func TestBackoffNeverZero(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: 300 * time.Microsecond, Max: 900 * time.Microsecond, K: 1.5}
	for i := 0; i < 10; i++ {
		d := b.DelayAfter(false)
		assert.True(t, d >= b.Min, "delay=%v", d)
		assert.True(t, d <= b.Max, "delay=%v", d)
	}
}
