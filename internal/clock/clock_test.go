package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	c := NewFake(start)
	assert.Equal(t, start, c.Now())

	got := c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, c.Now())

	later := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestReal_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real().Now().Location())
}
