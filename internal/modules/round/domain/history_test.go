package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistory_AppendDeduplicatesByRoundNumber(t *testing.T) {
	h := NewHistory()
	now := time.Now()

	assert.True(t, h.Append(100, OutcomeSideA, now))
	assert.False(t, h.Append(100, OutcomeSideB, now), "same round number must not append twice")

	assert.Equal(t, 1, h.Len())
	assert.True(t, h.Contains(100))
	assert.False(t, h.Contains(101))
	// The first outcome wins.
	assert.Equal(t, OutcomeSideA, h.Entries()[0].Outcome)
}

func TestHistory_Streaks(t *testing.T) {
	h := NewHistory()
	now := time.Now()
	sequence := []Outcome{OutcomeSideA, OutcomeSideA, OutcomeSideB, OutcomeDraw, OutcomeSideB, OutcomeSideB, OutcomeSideB}
	for i, o := range sequence {
		h.Append(i+1, o, now)
	}

	side, run := h.CurrentStreak()
	assert.Equal(t, OutcomeSideB, side)
	assert.Equal(t, 3, run)

	assert.Equal(t, 2, h.LongestStreak(OutcomeSideA))
	assert.Equal(t, 3, h.LongestStreak(OutcomeSideB))
	assert.Equal(t, 1, h.LongestStreak(OutcomeDraw))

	counts := h.Counts()
	assert.Equal(t, 2, counts[OutcomeSideA])
	assert.Equal(t, 4, counts[OutcomeSideB])
	assert.Equal(t, 1, counts[OutcomeDraw])
}

func TestHistory_EmptyStreak(t *testing.T) {
	h := NewHistory()
	side, run := h.CurrentStreak()
	assert.Equal(t, OutcomeUnknown, side)
	assert.Zero(t, run)
}

func TestHistory_Last(t *testing.T) {
	h := NewHistory()
	now := time.Now()
	for i := 1; i <= 5; i++ {
		h.Append(i, OutcomeSideA, now)
	}

	last := h.Last(2)
	assert.Len(t, last, 2)
	assert.Equal(t, 4, last[0].RoundNumber)
	assert.Equal(t, 5, last[1].RoundNumber)

	// Asking for more than exists returns everything.
	assert.Len(t, h.Last(10), 5)
}
