package clocktest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_Advance_fires_due_timers_in_order(t *testing.T) {
	c := New(time.Unix(0, 0))

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestClock_Stop(t *testing.T) {
	c := New(time.Unix(0, 0))

	called := false
	tm := c.AfterFunc(time.Second, func() { called = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	c.Advance(time.Minute)
	assert.False(t, called)
}

func TestClock_Stop_after_fire(t *testing.T) {
	c := New(time.Unix(0, 0))
	tm := c.AfterFunc(time.Second, func() {})

	c.Advance(time.Second)
	assert.False(t, tm.Stop())
}
