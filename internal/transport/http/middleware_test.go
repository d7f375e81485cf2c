package transporthttp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestViewerLimiterSweepsIdleBuckets(t *testing.T) {
	clock := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	v := newViewerLimiter(2)
	v.now = func() time.Time { return clock }

	for i := 0; i < 1000; i++ {
		assert.True(t, v.allow(fmt.Sprintf("viewer-%d", i)))
	}
	assert.True(t, v.allow("Rev"))
	assert.True(t, v.allow("Rev"))
	assert.False(t, v.allow("Rev"))
	assert.Equal(t, 1001, v.size())

	clock = clock.Add(30 * time.Second)
	assert.True(t, v.allow("Busy"))
	assert.Equal(t, 1002, v.size(), "nothing is idle long enough yet")

	clock = clock.Add(limiterIdle)
	assert.True(t, v.allow("Rev"), "a swept viewer starts with a full bucket")
	assert.Equal(t, 1, v.size())
}

func TestViewerLimiterKeepsActiveBuckets(t *testing.T) {
	clock := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	v := newViewerLimiter(60)
	v.now = func() time.Time { return clock }

	assert.True(t, v.allow("Rev"))
	clock = clock.Add(limiterIdle / 2)
	assert.True(t, v.allow("Rev"))
	clock = clock.Add(limiterIdle / 2)
	assert.True(t, v.allow("Other"))
	assert.Equal(t, 2, v.size(), "Rev was seen within the idle window")
}
