package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareRateLimiter(t *testing.T) {
	rl := NewShareRateLimiter(2, 10*time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("p1"))
	assert.True(t, rl.Allow("p1"))
	assert.False(t, rl.Allow("p1"))
	assert.True(t, rl.Allow("p2"), "limits are per participant")

	now = now.Add(10 * time.Second)
	assert.True(t, rl.Allow("p1"), "window slid past the first attempts")

	rl.Forget("p1")
	assert.True(t, rl.Allow("p1"))
	assert.True(t, rl.Allow("p1"))
	assert.False(t, rl.Allow("p1"))
}
