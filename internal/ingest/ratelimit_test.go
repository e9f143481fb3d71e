package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCapsWithinWindow(t *testing.T) {
	l := NewRateLimiter(3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, l.allowAt(now.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.False(t, l.allowAt(now.Add(4*time.Millisecond)))
	assert.False(t, l.allowAt(now.Add(5*time.Millisecond)))
	assert.Equal(t, uint64(2), l.Rejected())
}

func TestRateLimiterWindowSlides(t *testing.T) {
	l := NewRateLimiter(2)
	now := time.Now()

	assert.True(t, l.allowAt(now))
	assert.True(t, l.allowAt(now.Add(100*time.Millisecond)))
	assert.False(t, l.allowAt(now.Add(200*time.Millisecond)))

	// The first acceptance ages out just past one second, freeing a slot;
	// the second is still inside the window.
	assert.True(t, l.allowAt(now.Add(1001*time.Millisecond)))
	assert.False(t, l.allowAt(now.Add(1050*time.Millisecond)))
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(0)
	now := time.Now()
	for i := 0; i < 1000; i++ {
		assert.True(t, l.allowAt(now))
	}
	assert.Equal(t, uint64(0), l.Rejected())
}
