package highwater

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterpretStatusChanged(t *testing.T) {
	previous := Statistics{CurrentMark: 100, HighestSequence: 100}
	candidate := Statistics{CurrentMark: 150, HighestSequence: 150}

	assert.Equal(t, Changed, candidate.InterpretStatus(previous))
}

func TestInterpretStatusCaughtUp(t *testing.T) {
	previous := Statistics{CurrentMark: 100, HighestSequence: 100}
	candidate := Statistics{CurrentMark: 100, HighestSequence: 100}

	assert.Equal(t, CaughtUp, candidate.InterpretStatus(previous))
}

func TestInterpretStatusStaleWhenBlockedBehindGap(t *testing.T) {
	previous := Statistics{CurrentMark: 100, HighestSequence: 100}
	candidate := Statistics{CurrentMark: 100, HighestSequence: 140}

	assert.Equal(t, Stale, candidate.InterpretStatus(previous))
}

func TestInterpretStatusChangedEvenWithTrailingGap(t *testing.T) {
	// Forward progress takes precedence over a gap further ahead.
	previous := Statistics{CurrentMark: 100, HighestSequence: 140}
	candidate := Statistics{CurrentMark: 120, HighestSequence: 140}

	assert.Equal(t, Changed, candidate.InterpretStatus(previous))
}

func TestInterpretStatusNoDataYet(t *testing.T) {
	candidate := Statistics{}

	assert.Equal(t, CaughtUp, candidate.InterpretStatus(Statistics{}))
}

func TestSafeHarborTime(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Statistics{CurrentMark: 10, Timestamp: now}

	assert.Equal(t, now.Add(3*time.Second), s.SafeHarborTime(3*time.Second))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "caught-up", CaughtUp.String())
	assert.Equal(t, "stale", Stale.String())
}
